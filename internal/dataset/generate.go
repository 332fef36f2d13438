package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"risk-engine/internal/features"
)

var (
	merchantNames = []string{"Shoprite", "Pick n Pay", "Woermann Brock", "Spar", "Engen", "Puma Energy", "Game", "Pep", "Checkers", "OK Foods"}
	merchantMCCs  = []int{5411, 5812, 5542, 5912, 5732, 5651, 5999}
	agentTypes    = []string{"small", "medium", "large"}
	agentStatuses = []string{"active", "active", "active", "inactive", "suspended"}
	agentTxnTypes = []string{"cash_out", "cash_in", "commission"}
	generatorBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Home region of generated users, roughly Namibia.
const (
	minLat, maxLat = -22.0, -18.0
	minLon, maxLon = 12.0, 25.0
)

// GenerateFraud returns n synthetic transactions of which about fraudRate
// are fraudulent. Fraud rows skew towards large night-time card-not-present
// payments far from home on unknown devices; the classes overlap so no
// single feature separates them.
func GenerateFraud(n int, fraudRate float64, seed uint64) []FraudRecord {
	rng := rand.New(rand.NewPCG(seed, 1))
	users := max(1, n/10)
	recs := make([]FraudRecord, n)
	for i := range recs {
		fraud := rng.Float64() < fraudRate
		suspicious := fraud
		// a share of legitimate traffic looks suspicious and vice versa
		if rng.Float64() < 0.15 {
			suspicious = !suspicious
		}

		user := rng.IntN(users)
		avg := math.Exp(4.0 + 0.5*rng.NormFloat64())
		amount := avg * math.Exp(0.6*rng.NormFloat64())
		hour := 8 + rng.IntN(14)
		home := features.GeoPoint{Lat: uniform(rng, minLat, maxLat), Lon: uniform(rng, minLon, maxLon)}
		merchant := features.GeoPoint{Lat: home.Lat + 0.05*rng.NormFloat64(), Lon: home.Lon + 0.05*rng.NormFloat64()}
		device := fmt.Sprintf("DEV_%04d", user)
		known := device
		cardPresent := rng.Float64() < 0.7
		foreign := rng.Float64() < 0.02
		lastHour := float64(rng.IntN(3))
		lastDay := lastHour + float64(rng.IntN(6))
		benAge := 30 + rng.Float64()*1500
		merchantRate := 0.005 + 0.01*rng.Float64()
		kyc := 1 + rng.IntN(2)

		if suspicious {
			amount = avg * (3 + 8*rng.Float64())
			if rng.Float64() < 0.6 {
				hour = (23 + rng.IntN(8)) % 24
			}
			if rng.Float64() < 0.5 {
				merchant = features.GeoPoint{Lat: uniform(rng, -35, 5), Lon: uniform(rng, -20, 40)}
				foreign = rng.Float64() < 0.6
			}
			if rng.Float64() < 0.6 {
				device = fmt.Sprintf("DEV_X%05d", rng.IntN(100000))
			}
			cardPresent = rng.Float64() < 0.15
			lastHour = float64(2 + rng.IntN(8))
			lastDay = lastHour + float64(rng.IntN(15))
			benAge = rng.Float64() * 30
			merchantRate = 0.01 + 0.05*rng.Float64()
			kyc = rng.IntN(2)
		}
		if rng.Float64() < 0.2 {
			amount = math.Round(amount/100) * 100
		}
		amount = math.Max(1, math.Round(amount*100)/100)

		ts := generatorBase.
			Add(time.Duration(i%365) * 24 * time.Hour).
			Add(time.Duration(hour)*time.Hour + time.Duration(rng.IntN(60))*time.Minute)
		velocity := math.Min(1, lastHour/10)

		rec := FraudRecord{
			Transaction: features.Transaction{
				TransactionID:          fmt.Sprintf("TXN_%07d", i),
				UserID:                 fmt.Sprintf("USER_%04d", user),
				Amount:                 &amount,
				Timestamp:              ts.Format(time.RFC3339),
				MerchantName:           merchantNames[rng.IntN(len(merchantNames))],
				MerchantMCC:            merchantMCCs[rng.IntN(len(merchantMCCs))],
				UserLocation:           &home,
				MerchantLocation:       &merchant,
				DeviceFingerprint:      device,
				KnownDeviceFingerprint: known,
				BeneficiaryAgeDays:     &benAge,
				UserAvgAmount:          &avg,
				MerchantFraudRate:      &merchantRate,
				IsForeign:              &foreign,
				CardPresent:            &cardPresent,
				TransactionsLastHour:   &lastHour,
				TransactionsLastDay:    &lastDay,
				VelocityScore:          &velocity,
				KYCLevel:               &kyc,
			},
		}
		if fraud {
			rec.Label = 1
		}
		if rng.Float64() < 0.1 {
			rec.Agent = generateAgent(rng, suspicious)
		}
		recs[i] = rec
	}
	return recs
}

func generateAgent(rng *rand.Rand, suspicious bool) *features.AgentContext {
	risk := 0.1 + 0.3*rng.Float64()
	if suspicious {
		risk = 0.5 + 0.5*rng.Float64()
	}
	return &features.AgentContext{
		Type:                   agentTypes[rng.IntN(len(agentTypes))],
		Status:                 agentStatuses[rng.IntN(len(agentStatuses))],
		LiquidityNormalized:    rng.Float64(),
		CashOnHandNormalized:   rng.Float64(),
		HasSufficientLiquidity: rng.Float64() < 0.8,
		TransactionType:        agentTxnTypes[rng.IntN(len(agentTxnTypes))],
		CommissionRate:         0.005 + 0.02*rng.Float64(),
		RiskScore:              &risk,
	}
}

// GenerateCredit returns n synthetic merchant histories of which about
// defaultRate defaulted. Defaulters have younger accounts, higher failure
// and dispute counts and thinner balances.
func GenerateCredit(n int, defaultRate float64, seed uint64) []CreditRecord {
	rng := rand.New(rand.NewPCG(seed, 2))
	recs := make([]CreditRecord, n)
	for i := range recs {
		defaulted := rng.Float64() < defaultRate
		risky := defaulted
		if rng.Float64() < 0.15 {
			risky = !risky
		}

		count := poisson(rng, 150)
		failRate := 0.01 + 0.03*rng.Float64()
		age := int(rng.ExpFloat64() * 365)
		balance := math.Exp(7.0 + 0.8*rng.NormFloat64())
		incidents := 0
		disputes := poisson(rng, 0.5)
		chargebacks := 0
		if rng.Float64() < 0.03 {
			chargebacks = 1
		}
		repayment := 0.85 + 0.15*rng.Float64()
		if risky {
			count = poisson(rng, 60)
			failRate = 0.08 + 0.2*rng.Float64()
			age = int(rng.ExpFloat64() * 120)
			balance = math.Exp(5.5 + 0.8*rng.NormFloat64())
			incidents = poisson(rng, 0.8)
			disputes = poisson(rng, 3)
			chargebacks = poisson(rng, 1)
			repayment = 0.3 + 0.5*rng.Float64()
		}
		avgAmount := math.Exp(4.5 + 0.6*rng.NormFloat64())
		failed := int(math.Round(float64(count) * failRate))
		volume := math.Round(avgAmount*float64(count)*100) / 100
		loan := math.Round(volume/3*uniform(rng, 0.1, 0.6)/50) * 50
		loan = math.Max(100, loan)

		rec := CreditRecord{
			CreditRequest: features.CreditRequest{
				UserID:                 fmt.Sprintf("MERCHANT_%05d", i),
				LoanAmountRequested:    loan,
				TotalTransactionVolume: volume,
				AvgTransactionAmount:   math.Round(avgAmount*100) / 100,
				TransactionCount:       count,
				AccountAgeDays:         age,
				SuccessfulTransactions: count - failed,
				FailedTransactions:     failed,
				AvgDailyBalance:        math.Round(balance*100) / 100,
				FraudIncidents:         incidents,
				DisputedTransactions:   disputes,
				Chargebacks:            chargebacks,
			},
		}
		if rng.Float64() < 0.5 {
			prev := 0
			if rng.Float64() < 0.4 {
				prev = 1 + rng.IntN(3)
			}
			rec.Profile = &features.MerchantProfile{
				PreviousLoans:        prev,
				RepaymentRate:        &repayment,
				HasSocialMedia:       rng.Float64() < 0.5,
				RegistrationVerified: !risky || rng.Float64() < 0.3,
			}
		}
		if defaulted {
			rec.Label = 1
		}
		recs[i] = rec
	}
	return recs
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

// poisson draws with Knuth's method for small means and a rounded normal
// approximation otherwise.
func poisson(rng *rand.Rand, lambda float64) int {
	if lambda > 30 {
		return max(0, int(math.Round(lambda+math.Sqrt(lambda)*rng.NormFloat64())))
	}
	l := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}
