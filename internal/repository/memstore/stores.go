package memstore

import "crystalgate/internal/repository"

// NewStores returns a process-local store set for development and tests.
func NewStores(signupGrant int64) repository.Stores {
	users, credits := NewUsers(), NewCredits(signupGrant)
	spend, rate, usage := NewSpend(), NewRate(), NewUsage()
	idents, collection, streaks, dreams := NewIdentifications(), NewCollection(), NewStreaks(), NewDreams()
	return repository.Stores{
		Users:           users,
		Credits:         credits,
		Spend:           spend,
		Rate:            rate,
		Usage:           usage,
		Identifications: idents,
		Collection:      collection,
		Streaks:         streaks,
		Dreams:          dreams,
		Accounts:        NewAccounts(users, credits, spend, rate, usage, idents, collection, streaks, dreams),
		Global:          NewGlobal(),
		Dedupe:          NewDedupe(),
		Cache:           NewCache(),
	}
}
