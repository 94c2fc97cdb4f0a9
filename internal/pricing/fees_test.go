package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"serialrent-backend/internal/domain"
)

func TestLateFee(t *testing.T) {
	in := LateFeeInput{DailyCharge: dec("50"), RentalAmount: dec("1000")}

	t.Run("Daily rate from line item", func(t *testing.T) {
		fee := LateFee(in, 3, LateFeePolicy{Method: LateFeeMethodDaily})
		assert.True(t, dec("150").Equal(fee), "got %s", fee)
	})

	t.Run("Configured daily rate wins over line item", func(t *testing.T) {
		fee := LateFee(in, 3, LateFeePolicy{Method: LateFeeMethodDaily, DailyRate: dec("20")})
		assert.True(t, dec("60").Equal(fee), "got %s", fee)
	})

	t.Run("Percentage of rental amount per day", func(t *testing.T) {
		fee := LateFee(in, 2, LateFeePolicy{Method: LateFeeMethodPercentage, Percentage: dec("10")})
		assert.True(t, dec("200").Equal(fee), "got %s", fee)
	})

	t.Run("Maximum picks the larger", func(t *testing.T) {
		p := LateFeePolicy{Method: LateFeeMethodMaximum, Percentage: dec("2")}
		fee := LateFee(in, 4, p)
		// daily 200 vs percentage 80
		assert.True(t, dec("200").Equal(fee), "got %s", fee)

		p.Percentage = dec("10")
		fee = LateFee(in, 4, p)
		assert.True(t, dec("400").Equal(fee), "got %s", fee)
	})

	t.Run("Not late", func(t *testing.T) {
		for _, m := range []LateFeeMethod{LateFeeMethodDaily, LateFeeMethodPercentage, LateFeeMethodMaximum} {
			assert.True(t, LateFee(in, 0, LateFeePolicy{Method: m, Percentage: dec("5")}).IsZero())
			assert.True(t, LateFee(in, -2, LateFeePolicy{Method: m, Percentage: dec("5")}).IsZero())
		}
	})

	t.Run("Monotonic in days", func(t *testing.T) {
		p := LateFeePolicy{Method: LateFeeMethodMaximum, Percentage: dec("3")}
		prev := decimal.Zero
		for d := 0; d <= 30; d++ {
			fee := LateFee(in, d, p)
			assert.True(t, fee.GreaterThanOrEqual(prev), "day %d", d)
			prev = fee
		}
	})
}

func TestDamageFee(t *testing.T) {
	p := DefaultPolicy().Damage
	value := dec("1200")

	tests := []struct {
		name      string
		condition domain.Condition
		override  *decimal.Decimal
		fee       string
		severity  domain.Severity
	}{
		{"Good", domain.ConditionGood, nil, "0", domain.SeverityNone},
		{"Minor default", domain.ConditionMinorDamage, nil, "50", domain.SeverityMinor},
		{"Damaged default", domain.ConditionDamaged, nil, "250", domain.SeverityModerate},
		{"Lost is item value", domain.ConditionLost, nil, "1200", domain.SeveritySevere},
		{"Lost ignores override", domain.ConditionLost, ptr(dec("10")), "1200", domain.SeveritySevere},
		{"Override reclassifies", domain.ConditionDamaged, ptr(dec("650")), "650", domain.SeveritySevere},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, sev := DamageFee(tt.condition, value, tt.override, p)
			assert.True(t, dec(tt.fee).Equal(fee), "got %s", fee)
			assert.Equal(t, tt.severity, sev)
		})
	}
}

func TestClassify(t *testing.T) {
	p := DefaultPolicy().Damage

	assert.Equal(t, domain.SeverityMinor, Classify(dec("99.99"), p))
	assert.Equal(t, domain.SeverityModerate, Classify(dec("100"), p))
	assert.Equal(t, domain.SeverityModerate, Classify(dec("499.99"), p))
	assert.Equal(t, domain.SeveritySevere, Classify(dec("500"), p))
	assert.Equal(t, domain.SeveritySevere, Classify(dec("10000"), p))
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	bad := DefaultPolicy()
	bad.Late.Method = "weekly"
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.Damage.MinorThreshold = dec("600")
	assert.Error(t, bad.Validate())
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
