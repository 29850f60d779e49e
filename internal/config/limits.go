package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// MicrosPerUnit converts currency units to the integer micro-units used by the spend windows.
const MicrosPerUnit = 1_000_000

// Limits is the quota configuration surface: tier profiles, the estimated cost table, global
// ceilings and the credit economy. It is loaded once at startup and read-only afterwards.
type Limits struct {
	Tiers                map[string]TierProfile `yaml:"tiers" validate:"required,min=1,dive"`
	Operations           map[string]Operation   `yaml:"operations" validate:"required,min=1,dive"`
	DefaultOperationCost decimal.Decimal        `yaml:"default_operation_cost"`
	Global               GlobalCeilings         `yaml:"global"`
	Credits              CreditEconomy          `yaml:"credits"`
	Dedupe               DedupeSettings         `yaml:"dedupe"`
	Streaks              StreakSettings         `yaml:"streaks"`
}

type TierProfile struct {
	Spend SpendCeilings          `yaml:"spend"`
	Rate  map[string]RateCeiling `yaml:"rate" validate:"dive"`
	// NeedsCredits marks tiers metered by the credit ledger.
	NeedsCredits bool `yaml:"needs_credits"`
	// CollectionMax of 0 means unlimited.
	CollectionMax int  `yaml:"collection_max" validate:"gte=0"`
	MaxImageBytes int  `yaml:"max_image_bytes" validate:"gt=0"`
	StreakFreezes int  `yaml:"streak_freezes" validate:"gte=0"`
	FullAnalysis  bool `yaml:"full_analysis"`
	// ProgressiveBelow re-runs an identification on the pro model when the first pass is less
	// confident than this. Zero disables it.
	ProgressiveBelow float64 `yaml:"progressive_below" validate:"gte=0,lte=1"`
}

// SpendCeilings are in currency units. A zero ceiling disables that window.
type SpendCeilings struct {
	Hourly  decimal.Decimal `yaml:"hourly"`
	Daily   decimal.Decimal `yaml:"daily"`
	Monthly decimal.Decimal `yaml:"monthly"`
}

type RateCeiling struct {
	Hourly int64 `yaml:"hourly" validate:"gte=0"`
	Daily  int64 `yaml:"daily" validate:"gte=0"`
}

// Operation is one row of the static cost table.
type Operation struct {
	Cost    decimal.Decimal `yaml:"cost"`
	Credits int64           `yaml:"credits" validate:"gte=0"`
}

type GlobalCeilings struct {
	Hourly    decimal.Decimal `yaml:"hourly"`
	Daily     decimal.Decimal `yaml:"daily"`
	Emergency decimal.Decimal `yaml:"emergency"`
	// AlertRatio is the fraction of a ceiling at which alerts fire.
	AlertRatio decimal.Decimal `yaml:"alert_ratio"`
}

type CreditEconomy struct {
	SignupGrant  int64 `yaml:"signup_grant" validate:"gte=0"`
	DailyCheckIn int64 `yaml:"daily_check_in" validate:"gte=0"`
}

type DedupeSettings struct {
	Window time.Duration `yaml:"window" validate:"gt=0"`
}

type StreakSettings struct {
	Milestones []Milestone `yaml:"milestones" validate:"dive"`
}

type Milestone struct {
	Days    int    `yaml:"days" validate:"gt=0"`
	Credits int64  `yaml:"credits" validate:"gte=0"`
	Badge   string `yaml:"badge"`
}

// Tier names known to the default profile table.
const (
	TierFree     = "free"
	TierPremium  = "premium"
	TierPro      = "pro"
	TierFounders = "founders"
)

// Action names counted by the rate limiter.
const (
	ActionIdentify = "identify"
	ActionGuidance = "guidance"
	ActionCheckout = "checkout"
	ActionDream    = "dream"
)

// Operation names in the default cost table.
const (
	OpThumbnailAnalysis   = "thumbnailAnalysis"
	OpFullImageAnalysis   = "fullImageAnalysis"
	OpProgressiveAnalysis = "progressiveAnalysis"
	OpGuidanceFlash       = "guidanceFlash"
	OpGuidancePro         = "guidancePro"
	OpDreamAnalysis       = "dreamAnalysis"
)

var ErrInvalidLimits = errors.New("invalid quota limits")

func usd(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rates(identifyH, identifyD, guidanceH, guidanceD, dreamD int64) map[string]RateCeiling {
	return map[string]RateCeiling{
		ActionIdentify: {Hourly: identifyH, Daily: identifyD},
		ActionGuidance: {Hourly: guidanceH, Daily: guidanceD},
		ActionCheckout: {Hourly: 3},
		ActionDream:    {Daily: dreamD},
	}
}

// DefaultLimits returns the production limit table.
func DefaultLimits() *Limits {
	return &Limits{
		Tiers: map[string]TierProfile{
			TierFree: {
				Spend:         SpendCeilings{Hourly: usd("0.10"), Daily: usd("0.50"), Monthly: usd("5")},
				Rate:          rates(3, 10, 2, 5, 2),
				NeedsCredits:  true,
				CollectionMax: 10,
				MaxImageBytes: 200 * 1024,
			},
			TierPremium: {
				Spend:            SpendCeilings{Hourly: usd("0.50"), Daily: usd("5"), Monthly: usd("50")},
				Rate:             rates(10, 30, 8, 20, 10),
				CollectionMax:    250,
				MaxImageBytes:    500 * 1024,
				StreakFreezes:    3,
				ProgressiveBelow: 0.70,
			},
			TierPro: {
				Spend:            SpendCeilings{Hourly: usd("2"), Daily: usd("20"), Monthly: usd("200")},
				Rate:             rates(30, 100, 20, 60, 30),
				CollectionMax:    1000,
				MaxImageBytes:    1024 * 1024,
				StreakFreezes:    7,
				FullAnalysis:     true,
				ProgressiveBelow: 0.80,
			},
			TierFounders: {
				Spend:            SpendCeilings{Hourly: usd("5"), Daily: usd("50"), Monthly: usd("500")},
				Rate:             rates(100, 500, 50, 200, 999),
				MaxImageBytes:    2 * 1024 * 1024,
				StreakFreezes:    14,
				FullAnalysis:     true,
				ProgressiveBelow: 0.85,
			},
		},
		Operations: map[string]Operation{
			OpThumbnailAnalysis:   {Cost: usd("0.001"), Credits: 1},
			OpFullImageAnalysis:   {Cost: usd("0.015"), Credits: 1},
			OpProgressiveAnalysis: {Cost: usd("0.008"), Credits: 1},
			OpGuidanceFlash:       {Cost: usd("0.001"), Credits: 1},
			OpGuidancePro:         {Cost: usd("0.003"), Credits: 1},
			OpDreamAnalysis:       {Cost: usd("0.002"), Credits: 2},
		},
		DefaultOperationCost: usd("0.01"),
		Global: GlobalCeilings{
			Hourly:     usd("10"),
			Daily:      usd("100"),
			Emergency:  usd("500"),
			AlertRatio: usd("0.8"),
		},
		Credits: CreditEconomy{SignupGrant: 15, DailyCheckIn: 1},
		Dedupe:  DedupeSettings{Window: 10 * time.Second},
		Streaks: StreakSettings{Milestones: []Milestone{
			{Days: 7, Credits: 5, Badge: "week_warrior"},
			{Days: 30, Credits: 20, Badge: "monthly_mystic"},
			{Days: 90, Credits: 50, Badge: "season_sage"},
			{Days: 365, Credits: 200, Badge: "yearly_yogi"},
		}},
	}
}

// LoadLimits returns the default table, overlaid with the YAML file at path when path is set.
// Tier and operation entries in the file replace the default entry of the same name.
func LoadLimits(path string) (*Limits, error) {
	limits := DefaultLimits()
	if path == "" {
		return limits, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading limits file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, limits); err != nil {
		return nil, fmt.Errorf("parsing limits file %s: %w", path, err)
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return limits, nil
}

// Validate checks structural constraints and that no money value is negative.
func (l *Limits) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(l); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLimits, err)
	}
	if _, ok := l.Tiers[TierFree]; !ok {
		return fmt.Errorf("%w: tier %q is required", ErrInvalidLimits, TierFree)
	}
	check := func(field string, d decimal.Decimal) error {
		if d.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidLimits, field)
		}
		return nil
	}
	for name, t := range l.Tiers {
		for field, d := range map[string]decimal.Decimal{"hourly": t.Spend.Hourly, "daily": t.Spend.Daily, "monthly": t.Spend.Monthly} {
			if err := check("tiers."+name+".spend."+field, d); err != nil {
				return err
			}
		}
	}
	for name, op := range l.Operations {
		if err := check("operations."+name+".cost", op.Cost); err != nil {
			return err
		}
	}
	for field, d := range map[string]decimal.Decimal{
		"default_operation_cost": l.DefaultOperationCost,
		"global.hourly":          l.Global.Hourly,
		"global.daily":           l.Global.Daily,
		"global.emergency":       l.Global.Emergency,
		"global.alert_ratio":     l.Global.AlertRatio,
	} {
		if err := check(field, d); err != nil {
			return err
		}
	}
	return nil
}

// Tier returns the profile for name, falling back to the free profile for unknown tiers.
func (l *Limits) Tier(name string) TierProfile {
	if t, ok := l.Tiers[name]; ok {
		return t
	}
	return l.Tiers[TierFree]
}

// KnownTier reports whether name has its own profile.
func (l *Limits) KnownTier(name string) bool {
	_, ok := l.Tiers[name]
	return ok
}

// Operation returns the cost table row for name. Unknown operations cost the default and one credit.
func (l *Limits) Operation(name string) Operation {
	if op, ok := l.Operations[name]; ok {
		return op
	}
	return Operation{Cost: l.DefaultOperationCost, Credits: 1}
}

// Milestone returns the milestone reached at exactly days, if any.
func (l *Limits) Milestone(days int) (Milestone, bool) {
	for _, m := range l.Streaks.Milestones {
		if m.Days == days {
			return m, true
		}
	}
	return Milestone{}, false
}

// NextMilestone returns the first milestone strictly after days.
func (l *Limits) NextMilestone(days int) (Milestone, bool) {
	ms := append([]Milestone(nil), l.Streaks.Milestones...)
	sort.Slice(ms, func(i, j int) bool { return ms[i].Days < ms[j].Days })
	for _, m := range ms {
		if m.Days > days {
			return m, true
		}
	}
	return Milestone{}, false
}

// ToMicros converts a currency amount to integer micro-units, rounding half away from zero.
func ToMicros(d decimal.Decimal) int64 {
	return d.Shift(6).Round(0).IntPart()
}

// FromMicros converts micro-units back to a currency amount.
func FromMicros(m int64) decimal.Decimal {
	return decimal.New(m, -6)
}
