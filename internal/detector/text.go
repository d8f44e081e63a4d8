package detector

import "fmt"

// Human-readable signal prose consumed by the chat notifier and dashboard.

func interpretation(t SignalType, level FinalLevel, rsi14 float64) string {
	switch t {
	case SignalPanic:
		switch level {
		case LevelRed:
			return fmt.Sprintf("Heavy panic selling: RSI %.1f deep in oversold territory with strong multi-period confirmation", rsi14)
		case LevelYellow:
			return fmt.Sprintf("Notable panic selling: RSI %.1f oversold, partially confirmed across periods", rsi14)
		default:
			return fmt.Sprintf("Early panic selling: RSI %.1f oversold on the base period only", rsi14)
		}
	case SignalGreed:
		switch level {
		case LevelRed:
			return fmt.Sprintf("Heavy greed buying: RSI %.1f deep in overbought territory with strong multi-period confirmation", rsi14)
		case LevelYellow:
			return fmt.Sprintf("Notable greed buying: RSI %.1f overbought, partially confirmed across periods", rsi14)
		default:
			return fmt.Sprintf("Early greed buying: RSI %.1f overbought on the base period only", rsi14)
		}
	}
	return ""
}

func recommendation(t SignalType, level FinalLevel) string {
	switch t {
	case SignalPanic:
		switch level {
		case LevelRed:
			return "Strong contrarian buy setup; watch for a reversal confirmation before entering"
		case LevelYellow:
			return "Possible buy setup forming; wait for volume to settle"
		default:
			return "Keep on the watchlist; too early to act"
		}
	case SignalGreed:
		switch level {
		case LevelRed:
			return "Strong contrarian sell setup; consider taking profit or tightening stops"
		case LevelYellow:
			return "Possible sell setup forming; avoid chasing the move"
		default:
			return "Keep on the watchlist; too early to act"
		}
	}
	return ""
}

func riskLevelText(level FinalLevel) string {
	switch level {
	case LevelRed:
		return "high risk, high conviction"
	case LevelYellow:
		return "elevated risk, moderate conviction"
	default:
		return "normal risk, low conviction"
	}
}
