package utils

import (
	"math"
)

// math.go - математические утилиты для хедж-торговли
//
// Все функции чистые, без побочных эффектов.

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Округление вниз гарантирует, что объём ордера не превысит доступные
// средства аккаунта.
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(1.999, 0.01) = 1.99
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize) * lotSize
}

// RoundToLotSizeUp округляет значение ВВЕРХ до ближайшего кратного lotSize.
//
// Используется когда нужно гарантировать минимальный объём (minQty).
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Ceil(value/lotSize) * lotSize
}

// CalculateSpreadPct расчитывает спред bid/ask в процентах от mid price.
//
// Формула:
//
//	Спред (%) = ((ask - bid) / mid) × 100, mid = (ask + bid) / 2
//
// Возвращает 0 при некорректных входных данных (bid/ask <= 0, ask < bid).
func CalculateSpreadPct(bid, ask float64) float64 {
	if bid <= 0 || ask <= 0 || ask < bid {
		return 0
	}
	mid := (bid + ask) / 2
	return (ask - bid) / mid * 100
}

// MidPrice возвращает среднюю цену между bid и ask.
func MidPrice(bid, ask float64) float64 {
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// CalculatePNL расчитывает прибыль/убыток по одной ноге.
//
// Формулы:
//   - long:  PNL = (P_current - P_entry) × qty
//   - short: PNL = (P_entry - P_current) × qty
func CalculatePNL(side string, entryPrice, currentPrice, quantity float64) float64 {
	if quantity <= 0 {
		return 0
	}

	switch side {
	case "long":
		return (currentPrice - entryPrice) * quantity
	case "short":
		return (entryPrice - currentPrice) * quantity
	default:
		return 0
	}
}

// CalculateHedgePNL расчитывает суммарный PNL двуногой хедж-позиции.
//
// Ноги дельта-нейтральны, поэтому суммарный PNL в идеале близок к нулю;
// отклонение отражает расхождение цен исполнения.
func CalculateHedgePNL(longEntry, longCurrent, shortEntry, shortCurrent, quantity float64) float64 {
	longPNL := CalculatePNL("long", longEntry, longCurrent, quantity)
	shortPNL := CalculatePNL("short", shortEntry, shortCurrent, quantity)
	return longPNL + shortPNL
}

// BookLevel представляет один уровень стакана
type BookLevel struct {
	Price  float64
	Volume float64
}

// DepthLiquidity суммирует доступную ликвидность в котировочной валюте
// по первым maxLevels уровням стакана.
//
// Используется гейтом допуска для проверки минимальной ликвидности:
// обе ноги должны исполниться без существенного проскальзывания.
func DepthLiquidity(levels []BookLevel, maxLevels int) float64 {
	if maxLevels <= 0 || maxLevels > len(levels) {
		maxLevels = len(levels)
	}

	var total float64
	for _, lvl := range levels[:maxLevels] {
		if lvl.Price <= 0 || lvl.Volume <= 0 {
			continue
		}
		total += lvl.Price * lvl.Volume
	}
	return total
}

// SimulateMarketFill моделирует рыночное исполнение заданного объёма
// по уровням стакана (asks для покупки, bids для продажи).
//
// Возвращает:
//   - avgPrice: средневзвешенная цена исполнения
//   - filledVolume: реально доступный объём (может быть < targetVolume)
//   - slippage: проскальзывание в процентах относительно лучшей цены
func SimulateMarketFill(levels []BookLevel, targetVolume float64) (avgPrice, filledVolume, slippage float64) {
	if len(levels) == 0 || targetVolume <= 0 {
		return 0, 0, 0
	}

	bestPrice := levels[0].Price
	if bestPrice <= 0 {
		return 0, 0, 0
	}

	var sumCost float64
	remaining := targetVolume

	for _, level := range levels {
		if level.Price <= 0 || level.Volume <= 0 {
			continue
		}

		take := math.Min(remaining, level.Volume)
		sumCost += level.Price * take
		filledVolume += take
		remaining -= take

		if remaining <= 0 {
			break
		}
	}

	if filledVolume == 0 {
		return 0, 0, 0
	}

	avgPrice = sumCost / filledVolume
	slippage = math.Abs(avgPrice-bestPrice) / bestPrice * 100

	return avgPrice, filledVolume, slippage
}

// Abs возвращает абсолютное значение числа.
func Abs(x float64) float64 {
	return math.Abs(x)
}

// Clamp ограничивает значение диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
