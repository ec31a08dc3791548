package models

import (
	"encoding/json"
	"fmt"
)

// Currency is one of the fixed point types tracked per user.
type Currency string

const (
	LaxCredit     Currency = "lax_credit"
	AttackToken   Currency = "attack_token"
	DefenseDollar Currency = "defense_dollar"
	MidfieldMedal Currency = "midfield_medal"
	ReboundReward Currency = "rebound_reward"
	LaxIQPoint    Currency = "lax_iq_point"
	FlexPoint     Currency = "flex_point"
)

const currencyCount = 7

// Currencies lists every currency in display order.
var Currencies = [currencyCount]Currency{
	LaxCredit, AttackToken, DefenseDollar, MidfieldMedal, ReboundReward, LaxIQPoint, FlexPoint,
}

func (c Currency) index() int {
	for i, cur := range Currencies {
		if cur == c {
			return i
		}
	}
	return -1
}

func (c Currency) Valid() bool { return c.index() >= 0 }

func ParseCurrency(s string) (Currency, error) {
	c := Currency(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown currency %q", s)
	}
	return c, nil
}

// ── Drill Categories ─────────────────────────────────────

type Category string

const (
	CategoryAttack       Category = "attack"
	CategoryDefense      Category = "defense"
	CategoryMidfield     Category = "midfield"
	CategoryWallBall     Category = "wall_ball"
	CategoryFundamentals Category = "fundamentals"
)

// Categories lists every drill category in a stable order.
var Categories = []Category{
	CategoryAttack, CategoryDefense, CategoryMidfield, CategoryWallBall, CategoryFundamentals,
}

var categoryCurrency = map[Category]Currency{
	CategoryAttack:       AttackToken,
	CategoryDefense:      DefenseDollar,
	CategoryMidfield:     MidfieldMedal,
	CategoryWallBall:     ReboundReward,
	CategoryFundamentals: LaxIQPoint,
}

// Currency returns the category-specific currency.
func (c Category) Currency() (Currency, bool) {
	cur, ok := categoryCurrency[c]
	return cur, ok
}

func (c Category) Valid() bool {
	_, ok := categoryCurrency[c]
	return ok
}

// ── Point Award ──────────────────────────────────────────

// PointAward holds an amount for every currency; absent currencies are zero.
type PointAward [currencyCount]int64

func (a PointAward) Get(c Currency) int64 {
	i := c.index()
	if i < 0 {
		return 0
	}
	return a[i]
}

func (a *PointAward) Set(c Currency, amount int64) {
	if i := c.index(); i >= 0 {
		a[i] = amount
	}
}

func (a *PointAward) Add(c Currency, amount int64) {
	if i := c.index(); i >= 0 {
		a[i] += amount
	}
}

// Plus returns the element-wise sum of two awards.
func (a PointAward) Plus(b PointAward) PointAward {
	var out PointAward
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

func (a PointAward) IsZero() bool {
	for _, v := range a {
		if v != 0 {
			return false
		}
	}
	return true
}

// Each calls fn for every non-zero amount in currency order.
func (a PointAward) Each(fn func(Currency, int64)) {
	for i, v := range a {
		if v != 0 {
			fn(Currencies[i], v)
		}
	}
}

// Map returns every currency, including zero amounts.
func (a PointAward) Map() map[Currency]int64 {
	out := make(map[Currency]int64, currencyCount)
	for i, c := range Currencies {
		out[c] = a[i]
	}
	return out
}

func (a PointAward) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Map())
}

func (a *PointAward) UnmarshalJSON(data []byte) error {
	var raw map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out PointAward
	for k, v := range raw {
		c, err := ParseCurrency(k)
		if err != nil {
			return err
		}
		out.Set(c, v)
	}
	*a = out
	return nil
}
