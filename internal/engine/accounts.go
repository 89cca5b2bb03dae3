package engine

import (
	"sort"
	"sync"
	"time"

	"hedger/internal/models"
	"hedger/pkg/utils"
)

// accounts.go - реестр торговых аккаунтов
//
// Реестр владеет состоянием каждого аккаунта и сериализует все операции
// через один mutex. Резервирование аккаунтов для хеджа атомарно: либо
// выделяются ВСЕ запрошенные аккаунты, либо ни один. Это исключает
// ситуацию, когда две одновременно оцениваемые пары делят аккаунт.

// accountState - внутреннее состояние аккаунта в реестре
type accountState struct {
	account        models.Account
	reserved       bool   // занят открывающимся хеджем
	reservedBy     string // ID хеджа, удерживающего резерв
	maxDailyTrades int    // 0 = без лимита
}

// AccountRegistry - единственный владелец состояния аккаунтов
type AccountRegistry struct {
	mu       sync.Mutex
	accounts map[string]*accountState // по адресу
	order    []string                 // детерминированный порядок выбора
	log      *utils.Logger
}

// NewAccountRegistry создаёт реестр из конфигурации.
// Порядок аккаунтов в конфигурации определяет приоритет выбора.
func NewAccountRegistry(accounts []models.Account, maxDailyTrades map[string]int, log *utils.Logger) *AccountRegistry {
	r := &AccountRegistry{
		accounts: make(map[string]*accountState, len(accounts)),
		order:    make([]string, 0, len(accounts)),
		log:      log.WithComponent("accounts"),
	}

	for _, acc := range accounts {
		acc.LastReset = utils.StartOfDayUTC(time.Now())
		r.accounts[acc.Address] = &accountState{
			account:        acc,
			maxDailyTrades: maxDailyTrades[acc.Address],
		}
		r.order = append(r.order, acc.Address)
	}

	return r
}

// resetIfNewDay сбрасывает дневные счётчики на границе суток UTC.
// Вызывается под mu.
func (r *AccountRegistry) resetIfNewDay(st *accountState, now time.Time) {
	if utils.SameDayUTC(st.account.LastReset, now) {
		return
	}
	st.account.DailyLoss = 0
	st.account.DailyTrades = 0
	st.account.LastReset = utils.StartOfDayUTC(now)
}

// eligible проверяет пригодность аккаунта для новой ноги.
// Вызывается под mu.
func (r *AccountRegistry) eligible(st *accountState, baseAmount float64, now time.Time) bool {
	r.resetIfNewDay(st, now)

	if st.account.Locked || st.reserved {
		return false
	}
	if st.account.AvailableBalance < baseAmount {
		return false
	}
	if st.maxDailyTrades > 0 && st.account.DailyTrades >= st.maxDailyTrades {
		return false
	}
	return true
}

// EligibleCount возвращает количество пригодных аккаунтов из списка
func (r *AccountRegistry) EligibleCount(addresses []string, baseAmount float64, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, addr := range addresses {
		st, ok := r.accounts[addr]
		if !ok {
			continue
		}
		if r.eligible(st, baseAmount, now) {
			count++
		}
	}
	return count
}

// HasLocked проверяет наличие заблокированных аккаунтов среди списка
func (r *AccountRegistry) HasLocked(addresses []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, addr := range addresses {
		if st, ok := r.accounts[addr]; ok && st.account.Locked {
			return true
		}
	}
	return false
}

// Reserve атомарно резервирует n пригодных аккаунтов из списка для хеджа.
//
// Выбор детерминирован: кандидаты сортируются по числу сделок за день
// (меньше - раньше), при равенстве - по порядку объявления в конфигурации.
// При нехватке пригодных аккаунтов возвращается ReservationError и ни
// один аккаунт не резервируется.
func (r *AccountRegistry) Reserve(hedgeID string, addresses []string, n int, baseAmount float64, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos := make(map[string]int, len(r.order))
	for i, addr := range r.order {
		pos[addr] = i
	}

	var candidates []string
	for _, addr := range addresses {
		st, ok := r.accounts[addr]
		if !ok {
			continue
		}
		if r.eligible(st, baseAmount, now) {
			candidates = append(candidates, addr)
		}
	}

	if len(candidates) < n {
		return nil, &ReservationError{
			HedgeID: hedgeID,
			Reason:  "not enough eligible accounts",
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := r.accounts[candidates[i]], r.accounts[candidates[j]]
		if a.account.DailyTrades != b.account.DailyTrades {
			return a.account.DailyTrades < b.account.DailyTrades
		}
		return pos[candidates[i]] < pos[candidates[j]]
	})

	selected := candidates[:n]
	for _, addr := range selected {
		st := r.accounts[addr]
		st.reserved = true
		st.reservedBy = hedgeID
	}

	return append([]string(nil), selected...), nil
}

// Release снимает резерв с аккаунтов хеджа
func (r *AccountRegistry) Release(hedgeID string, addresses []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, addr := range addresses {
		st, ok := r.accounts[addr]
		if !ok {
			continue
		}
		if st.reservedBy == hedgeID {
			st.reserved = false
			st.reservedBy = ""
		}
	}
}

// RecordTrade фиксирует исполненную сделку аккаунта
func (r *AccountRegistry) RecordTrade(address string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.accounts[address]
	if !ok {
		return
	}
	r.resetIfNewDay(st, now)
	st.account.DailyTrades++
	st.account.UpdatedAt = now
}

// SettlePnL применяет реализованный PNL к аккаунту: баланс двигается
// в обе стороны, дневной счётчик убытков накапливает только убытки.
func (r *AccountRegistry) SettlePnL(address string, pnl float64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.accounts[address]
	if !ok {
		return
	}
	r.resetIfNewDay(st, now)
	st.account.AvailableBalance += pnl
	if pnl < 0 {
		st.account.DailyLoss += utils.Abs(pnl)
	}
	st.account.UpdatedAt = now
}

// DailyLoss возвращает накопленный дневной убыток аккаунта
func (r *AccountRegistry) DailyLoss(address string, now time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.accounts[address]
	if !ok {
		return 0
	}
	r.resetIfNewDay(st, now)
	return st.account.DailyLoss
}

// Lock блокирует аккаунт до ручного вмешательства.
// Используется при неуправляемой экспозиции после неудачного разворота.
func (r *AccountRegistry) Lock(address, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.accounts[address]
	if !ok {
		return
	}
	st.account.Locked = true
	st.account.LockReason = reason
	st.account.UpdatedAt = time.Now()

	r.log.Warn("account locked",
		utils.Account(address),
		utils.Reason(reason),
	)
}

// Unlock снимает блокировку аккаунта (ручная операция оператора)
func (r *AccountRegistry) Unlock(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.accounts[address]
	if !ok {
		return false
	}
	if !st.account.Locked {
		return false
	}
	st.account.Locked = false
	st.account.LockReason = ""
	st.account.UpdatedAt = time.Now()

	r.log.Info("account unlocked", utils.Account(address))
	return true
}

// IsLocked возвращает статус блокировки аккаунта
func (r *AccountRegistry) IsLocked(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.accounts[address]
	return ok && st.account.Locked
}

// UpdateBalance обновляет доступный баланс аккаунта (сверка с биржей)
func (r *AccountRegistry) UpdateBalance(address string, balance float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.accounts[address]
	if !ok {
		return
	}
	st.account.AvailableBalance = balance
	st.account.UpdatedAt = time.Now()
}

// Balance возвращает доступный баланс аккаунта
func (r *AccountRegistry) Balance(address string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.accounts[address]
	if !ok {
		return 0, false
	}
	return st.account.AvailableBalance, true
}

// Snapshot возвращает копии всех аккаунтов для status API
func (r *AccountRegistry) Snapshot(now time.Time) []models.Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Account, 0, len(r.order))
	for _, addr := range r.order {
		st := r.accounts[addr]
		r.resetIfNewDay(st, now)
		out = append(out, st.account)
	}
	return out
}

// LockedCount возвращает число заблокированных аккаунтов
func (r *AccountRegistry) LockedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, st := range r.accounts {
		if st.account.Locked {
			count++
		}
	}
	return count
}
