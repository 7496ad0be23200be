package grpc

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/networth-backend/internal/domain"
	"github.com/simaogato/networth-backend/internal/usecase/exchangerate"
	"github.com/simaogato/networth-backend/internal/usecase/portfolio"
)

// Request decoding. Decimals travel as strings; numbers are accepted too.

func stringField(in *structpb.Struct, key string) string {
	v, ok := in.GetFields()[key]
	if !ok {
		return ""
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return kind.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
	default:
		return ""
	}
}

func boolField(in *structpb.Struct, key string) bool {
	return in.GetFields()[key].GetBoolValue()
}

func intField(in *structpb.Struct, key string) int {
	return int(in.GetFields()[key].GetNumberValue())
}

// optionalString and optionalInt return nil when the key is absent
func optionalString(in *structpb.Struct, key string) *string {
	if _, ok := in.GetFields()[key]; !ok {
		return nil
	}
	s := stringField(in, key)
	return &s
}

func optionalInt(in *structpb.Struct, key string) *int {
	if _, ok := in.GetFields()[key]; !ok {
		return nil
	}
	n := intField(in, key)
	return &n
}

func uuidField(in *structpb.Struct, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(stringField(in, key))
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", key, err)
	}
	return id, nil
}

func decimalField(in *structpb.Struct, key string) (decimal.Decimal, error) {
	raw := stringField(in, key)
	if raw == "" {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", key, err)
	}
	return d, nil
}

// dateField returns the zero time when the field is absent
func dateField(in *structpb.Struct, key string) (time.Time, error) {
	raw := stringField(in, key)
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := domain.ParseDay(raw)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", key, err)
	}
	return d, nil
}

func currencyField(in *structpb.Struct, key string) (domain.Currency, error) {
	raw := stringField(in, key)
	if raw == "" {
		return "", nil
	}
	c, err := domain.ParseCurrency(raw)
	if err != nil {
		return "", status.Errorf(codes.InvalidArgument, "invalid %s: %v", key, err)
	}
	return c, nil
}

// Response encoding

func respond(fields map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func listOf[T any](items []T, encode func(T) map[string]interface{}) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		out = append(out, encode(item))
	}
	return out
}

func institutionToMap(inst *domain.Institution) map[string]interface{} {
	return map[string]interface{}{
		"id":           inst.ID.String(),
		"name":         inst.Name,
		"category":     inst.Category,
		"displayOrder": inst.DisplayOrder,
		"createdAt":    inst.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func accountToMap(a *domain.Account) map[string]interface{} {
	m := map[string]interface{}{
		"id":            a.ID.String(),
		"institutionId": a.InstitutionID.String(),
		"name":          a.Name,
		"type":          string(a.Type),
		"currency":      string(a.Currency),
		"isActive":      a.IsActive,
		"displayOrder":  a.DisplayOrder,
		"isDerived":     a.IsDerived,
	}

	// Set parentAccountId if it exists
	if a.ParentAccountID != nil {
		m["parentAccountId"] = a.ParentAccountID.String()
	}
	return m
}

func snapshotToMap(s *domain.AccountSnapshot) map[string]interface{} {
	m := map[string]interface{}{
		"id":        s.ID.String(),
		"accountId": s.AccountID.String(),
		"date":      domain.FormatDay(s.Date),
		"value":     s.Value.String(),
		"currency":  string(s.Currency),
		"valueEur":  s.ValueEUR.String(),
		"note":      s.Note,
	}
	if s.ExchangeRate != nil {
		m["exchangeRate"] = s.ExchangeRate.String()
	}
	return m
}

func entryToMap(e *domain.BrokerageEntry) map[string]interface{} {
	return map[string]interface{}{
		"id":            e.ID.String(),
		"accountId":     e.AccountID.String(),
		"date":          domain.FormatDay(e.Date),
		"totalValue":    e.TotalValue.String(),
		"cashValue":     e.CashValue.String(),
		"investedValue": e.InvestedValue().String(),
		"currency":      string(e.Currency),
	}
}

func rateToMap(r *domain.ExchangeRate) map[string]interface{} {
	return map[string]interface{}{
		"date":   domain.FormatDay(r.Date),
		"from":   string(r.From),
		"to":     string(r.To),
		"rate":   r.Rate.String(),
		"source": r.Source,
	}
}

func quoteToMap(q exchangerate.Quote) map[string]interface{} {
	m := map[string]interface{}{
		"from":     string(q.From),
		"to":       string(q.To),
		"date":     domain.FormatDay(q.Date),
		"rate":     q.Rate.String(),
		"source":   string(q.Source),
		"degraded": q.Degraded(),
	}
	if !q.RateDate.IsZero() {
		m["rateDate"] = domain.FormatDay(q.RateDate)
	}
	return m
}

func currencyShareToMap(c portfolio.CurrencyShare) map[string]interface{} {
	return map[string]interface{}{
		"currency":    string(c.Currency),
		"count":       c.Count,
		"nativeValue": c.NativeValue.String(),
		"valueEur":    c.ValueEUR.String(),
		"percentage":  c.Percentage.String(),
	}
}

func typeBreakdownToMap(t portfolio.TypeBreakdown) map[string]interface{} {
	return map[string]interface{}{
		"type":  string(t.Type),
		"count": t.Count,
		"nativeTotals": listOf(t.NativeTotals, func(n portfolio.NativeTotal) map[string]interface{} {
			return map[string]interface{}{"currency": string(n.Currency), "value": n.Value.String()}
		}),
		"valueEur":   t.ValueEUR.String(),
		"percentage": t.Percentage.String(),
	}
}

func institutionShareToMap(i portfolio.InstitutionShare) map[string]interface{} {
	return map[string]interface{}{
		"institutionId": i.InstitutionID.String(),
		"name":          i.Name,
		"valueEur":      i.ValueEUR.String(),
		"percentage":    i.Percentage.String(),
	}
}

func summaryToMap(s *portfolio.Summary) map[string]interface{} {
	m := map[string]interface{}{
		"accountCount":       s.AccountCount,
		"valuedAccountCount": s.ValuedAccountCount,
		"totalValueEur":      s.TotalValueEUR.String(),
		"distribution": map[string]interface{}{
			"byType":        listOf(s.Distribution.ByType, typeBreakdownToMap),
			"byCurrency":    listOf(s.Distribution.ByCurrency, currencyShareToMap),
			"byInstitution": listOf(s.Distribution.ByInstitution, institutionShareToMap),
		},
		"dayChange": map[string]interface{}{
			"previousTotalEur": s.DayChange.PreviousTotalEUR.String(),
			"absolute":         s.DayChange.Absolute.String(),
			"percentage":       s.DayChange.Percentage.String(),
		},
	}
	if s.LastUpdated != nil {
		m["lastUpdated"] = domain.FormatDay(*s.LastUpdated)
	}
	return m
}

func historyPointToMap(p portfolio.HistoryPoint) map[string]interface{} {
	return map[string]interface{}{
		"date":          domain.FormatDay(p.Date),
		"totalValueEur": p.TotalValueEUR.String(),
		"breakdown": listOf(p.Breakdown, func(v portfolio.InstitutionValue) map[string]interface{} {
			return map[string]interface{}{
				"institutionId":   v.InstitutionID.String(),
				"institutionName": v.InstitutionName,
				"valueEur":        v.ValueEUR.String(),
			}
		}),
	}
}

func performanceToMap(p *portfolio.Performance) map[string]interface{} {
	return map[string]interface{}{
		"startDate":     domain.FormatDay(p.StartDate),
		"endDate":       domain.FormatDay(p.EndDate),
		"startValueEur": p.StartValueEUR.String(),
		"endValueEur":   p.EndValueEUR.String(),
		"absolute":      p.Absolute.String(),
		"percentage":    p.Percentage.String(),
		"periodDays":    p.PeriodDays,
	}
}
