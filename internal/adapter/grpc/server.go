package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/networth-backend/internal/domain"
	"github.com/simaogato/networth-backend/internal/usecase/brokerage"
	"github.com/simaogato/networth-backend/internal/usecase/catalog"
	"github.com/simaogato/networth-backend/internal/usecase/exchangerate"
	"github.com/simaogato/networth-backend/internal/usecase/portfolio"
	"github.com/simaogato/networth-backend/internal/usecase/snapshot"
)

// Server implements the NetWorthService gRPC server
type Server struct {
	CatalogService   *catalog.CatalogService
	SnapshotService  *snapshot.SnapshotService
	BrokerageService *brokerage.BrokerageService
	PortfolioService *portfolio.PortfolioService
	Rates            *exchangerate.Resolver

	// Now supplies "today" for requests that omit a date
	Now func() time.Time
}

var _ NetWorthServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(
	catalogService *catalog.CatalogService,
	snapshotService *snapshot.SnapshotService,
	brokerageService *brokerage.BrokerageService,
	portfolioService *portfolio.PortfolioService,
	rates *exchangerate.Resolver,
) *Server {
	return &Server{
		CatalogService:   catalogService,
		SnapshotService:  snapshotService,
		BrokerageService: brokerageService,
		PortfolioService: portfolioService,
		Rates:            rates,
		Now:              time.Now,
	}
}

func owner(ctx context.Context) (string, error) {
	ownerID, ok := OwnerFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing owner identity")
	}
	return ownerID, nil
}

// dayOrToday reads a date field, defaulting to the current UTC day
func (s *Server) dayOrToday(in *structpb.Struct, key string) (time.Time, error) {
	d, err := dateField(in, key)
	if err != nil {
		return time.Time{}, err
	}
	if d.IsZero() {
		return domain.Day(s.Now()), nil
	}
	return d, nil
}

// CreateInstitution handles the CreateInstitution RPC
func (s *Server) CreateInstitution(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}

	inst, err := s.CatalogService.CreateInstitution(ctx, catalog.CreateInstitutionInput{
		OwnerID:      ownerID,
		Name:         stringField(req, "name"),
		Category:     stringField(req, "category"),
		DisplayOrder: intField(req, "displayOrder"),
	})
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"institution": institutionToMap(inst)})
}

// ListInstitutions handles the ListInstitutions RPC
func (s *Server) ListInstitutions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}

	institutions, err := s.CatalogService.ListInstitutions(ctx, ownerID)
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"institutions": listOf(institutions, institutionToMap)})
}

// UpdateInstitution handles the UpdateInstitution RPC
func (s *Server) UpdateInstitution(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	id, err := uuidField(req, "institutionId")
	if err != nil {
		return nil, err
	}

	inst, err := s.CatalogService.UpdateInstitution(ctx, catalog.UpdateInstitutionInput{
		OwnerID:      ownerID,
		ID:           id,
		Name:         optionalString(req, "name"),
		Category:     optionalString(req, "category"),
		DisplayOrder: optionalInt(req, "displayOrder"),
	})
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"institution": institutionToMap(inst)})
}

// DeleteInstitution handles the DeleteInstitution RPC
func (s *Server) DeleteInstitution(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	id, err := uuidField(req, "institutionId")
	if err != nil {
		return nil, err
	}

	if err := s.CatalogService.DeleteInstitution(ctx, ownerID, id, boolField(req, "cascade")); err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"deleted": true})
}

// CreateAccount handles the CreateAccount RPC
func (s *Server) CreateAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	institutionID, err := uuidField(req, "institutionId")
	if err != nil {
		return nil, err
	}

	account, err := s.CatalogService.CreateAccount(ctx, catalog.CreateAccountInput{
		OwnerID:       ownerID,
		InstitutionID: institutionID,
		Name:          stringField(req, "name"),
		Type:          stringField(req, "type"),
		Currency:      stringField(req, "currency"),
		DisplayOrder:  intField(req, "displayOrder"),
		Inactive:      boolField(req, "inactive"),
	})
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"account": accountToMap(account)})
}

// ListAccounts handles the ListAccounts RPC
func (s *Server) ListAccounts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}

	accounts, err := s.CatalogService.ListAccounts(ctx, ownerID, boolField(req, "includeInactive"))
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"accounts": listOf(accounts, accountToMap)})
}

// UpdateAccount handles the UpdateAccount RPC
func (s *Server) UpdateAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	id, err := uuidField(req, "accountId")
	if err != nil {
		return nil, err
	}

	account, err := s.CatalogService.UpdateAccount(ctx, catalog.UpdateAccountInput{
		OwnerID:      ownerID,
		ID:           id,
		Name:         optionalString(req, "name"),
		Type:         optionalString(req, "type"),
		Currency:     optionalString(req, "currency"),
		DisplayOrder: optionalInt(req, "displayOrder"),
	})
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"account": accountToMap(account)})
}

// SetAccountActive handles the SetAccountActive RPC
func (s *Server) SetAccountActive(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	id, err := uuidField(req, "accountId")
	if err != nil {
		return nil, err
	}

	active := boolField(req, "active")
	if err := s.CatalogService.SetAccountActive(ctx, ownerID, id, active); err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"accountId": id.String(), "isActive": active})
}

// DeleteAccount handles the DeleteAccount RPC
func (s *Server) DeleteAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	id, err := uuidField(req, "accountId")
	if err != nil {
		return nil, err
	}

	if err := s.CatalogService.DeleteAccount(ctx, ownerID, id); err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"deleted": true})
}

// RecordSnapshot handles the RecordSnapshot RPC
func (s *Server) RecordSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	accountID, err := uuidField(req, "accountId")
	if err != nil {
		return nil, err
	}
	date, err := s.dayOrToday(req, "date")
	if err != nil {
		return nil, err
	}
	value, err := decimalField(req, "value")
	if err != nil {
		return nil, err
	}
	currency, err := currencyField(req, "currency")
	if err != nil {
		return nil, err
	}

	result, err := s.SnapshotService.RecordSnapshot(ctx, snapshot.RecordInput{
		OwnerID:   ownerID,
		AccountID: accountID,
		Date:      date,
		Value:     value,
		Currency:  currency,
		Note:      stringField(req, "note"),
	})
	if err != nil {
		return nil, mapError(err)
	}
	return respond(recordResultToMap(result))
}

func recordResultToMap(r *snapshot.RecordResult) map[string]interface{} {
	return map[string]interface{}{
		"snapshot": snapshotToMap(r.Snapshot),
		"rate":     quoteToMap(r.Rate),
	}
}

// RecordBatch handles the RecordBatch RPC
func (s *Server) RecordBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	date, err := s.dayOrToday(req, "date")
	if err != nil {
		return nil, err
	}

	values := req.GetFields()["updates"].GetListValue().GetValues()
	items := make([]snapshot.BatchItem, 0, len(values))
	for _, v := range values {
		update := v.GetStructValue()
		if update == nil {
			return nil, status.Error(codes.InvalidArgument, "updates must be objects")
		}
		accountID, err := uuidField(update, "accountId")
		if err != nil {
			return nil, err
		}
		value, err := decimalField(update, "value")
		if err != nil {
			return nil, err
		}
		currency, err := currencyField(update, "currency")
		if err != nil {
			return nil, err
		}
		items = append(items, snapshot.BatchItem{
			AccountID: accountID,
			Value:     value,
			Currency:  currency,
			Note:      stringField(update, "note"),
		})
	}

	results, err := s.SnapshotService.RecordBatch(ctx, ownerID, date, items)
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"results": listOf(results, recordResultToMap)})
}

// DeleteSnapshot handles the DeleteSnapshot RPC
func (s *Server) DeleteSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	accountID, err := uuidField(req, "accountId")
	if err != nil {
		return nil, err
	}
	date, err := dateField(req, "date")
	if err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "date is required")
	}

	if err := s.SnapshotService.DeleteSnapshot(ctx, ownerID, accountID, date); err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"deleted": true})
}

// ListSnapshots handles the ListSnapshots RPC
func (s *Server) ListSnapshots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	accountID, err := uuidField(req, "accountId")
	if err != nil {
		return nil, err
	}
	from, err := dateField(req, "from")
	if err != nil {
		return nil, err
	}
	to, err := dateField(req, "to")
	if err != nil {
		return nil, err
	}

	snapshots, err := s.SnapshotService.ListSnapshots(ctx, ownerID, accountID, from, to, intField(req, "limit"))
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"snapshots": listOf(snapshots, snapshotToMap)})
}

// ApplyBrokerageSplit handles the ApplyBrokerageSplit RPC
func (s *Server) ApplyBrokerageSplit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	accountID, err := uuidField(req, "accountId")
	if err != nil {
		return nil, err
	}
	date, err := s.dayOrToday(req, "date")
	if err != nil {
		return nil, err
	}
	total, err := decimalField(req, "totalValue")
	if err != nil {
		return nil, err
	}
	cash, err := decimalField(req, "cashValue")
	if err != nil {
		return nil, err
	}
	currency, err := currencyField(req, "currency")
	if err != nil {
		return nil, err
	}

	result, err := s.BrokerageService.ApplySplit(ctx, brokerage.SplitInput{
		OwnerID:    ownerID,
		AccountID:  accountID,
		Date:       date,
		TotalValue: total,
		CashValue:  cash,
		Currency:   currency,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return respond(map[string]interface{}{
		"entry":             entryToMap(result.Entry),
		"parent":            accountToMap(result.Parent),
		"cashAccount":       accountToMap(result.Cash),
		"investmentAccount": accountToMap(result.Investment),
		"snapshots": map[string]interface{}{
			"total":      snapshotToMap(result.Snapshots.Total),
			"cash":       snapshotToMap(result.Snapshots.Cash),
			"investment": snapshotToMap(result.Snapshots.Investment),
		},
		"rate": quoteToMap(result.Rate),
	})
}

// ListBrokerageEntries handles the ListBrokerageEntries RPC
func (s *Server) ListBrokerageEntries(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	accountID, err := uuidField(req, "accountId")
	if err != nil {
		return nil, err
	}
	from, err := dateField(req, "from")
	if err != nil {
		return nil, err
	}
	to, err := dateField(req, "to")
	if err != nil {
		return nil, err
	}

	entries, err := s.BrokerageService.ListEntries(ctx, ownerID, accountID, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"entries": listOf(entries, entryToMap)})
}

// GetSummary handles the GetSummary RPC
func (s *Server) GetSummary(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}

	summary, err := s.PortfolioService.GetSummary(ctx, ownerID, portfolio.Options{
		IncludeInactive: boolField(req, "includeInactive"),
	})
	if err != nil {
		return nil, mapError(err)
	}
	return respond(summaryToMap(summary))
}

// GetHistory handles the GetHistory RPC
func (s *Server) GetHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	start, end, err := s.period(req)
	if err != nil {
		return nil, err
	}

	points, err := s.PortfolioService.GetHistory(ctx, ownerID, start, end, portfolio.Options{
		IncludeInactive: boolField(req, "includeInactive"),
	})
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"points": listOf(points, historyPointToMap)})
}

// GetCurrencyBreakdown handles the GetCurrencyBreakdown RPC
func (s *Server) GetCurrencyBreakdown(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.PortfolioService.GetCurrencyBreakdown(ctx, ownerID)
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{
		"totalValueEur": breakdown.TotalValueEUR.String(),
		"currencies":    listOf(breakdown.Currencies, currencyShareToMap),
	})
}

// GetPerformance handles the GetPerformance RPC
func (s *Server) GetPerformance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	start, end, err := s.period(req)
	if err != nil {
		return nil, err
	}

	performance, err := s.PortfolioService.GetPerformance(ctx, ownerID, start, end, portfolio.Options{
		IncludeInactive: boolField(req, "includeInactive"),
	})
	if err != nil {
		return nil, mapError(err)
	}
	return respond(performanceToMap(performance))
}

// period reads startDate/endDate; the end defaults to today
func (s *Server) period(req *structpb.Struct) (time.Time, time.Time, error) {
	start, err := dateField(req, "startDate")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.IsZero() {
		return time.Time{}, time.Time{}, status.Error(codes.InvalidArgument, "startDate is required")
	}
	end, err := s.dayOrToday(req, "endDate")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// ConvertCurrency handles the ConvertCurrency RPC
func (s *Server) ConvertCurrency(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := owner(ctx); err != nil {
		return nil, err
	}
	amount, err := decimalField(req, "amount")
	if err != nil {
		return nil, err
	}
	from, err := currencyField(req, "from")
	if err != nil {
		return nil, err
	}
	to, err := currencyField(req, "to")
	if err != nil {
		return nil, err
	}
	if from == "" || to == "" {
		return nil, status.Error(codes.InvalidArgument, "from and to are required")
	}
	date, err := s.dayOrToday(req, "date")
	if err != nil {
		return nil, err
	}

	converted, quote, err := s.Rates.Convert(ctx, amount, from, to, date)
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{
		"amount":    amount.String(),
		"converted": converted.String(),
		"rate":      quoteToMap(quote),
	})
}

// GetLatestRates handles the GetLatestRates RPC
func (s *Server) GetLatestRates(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := owner(ctx); err != nil {
		return nil, err
	}

	rates, err := s.Rates.LatestRates(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return respond(map[string]interface{}{"rates": listOf(rates, rateToMap)})
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Errorf(codes.InvalidArgument, "%s", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s", err.Error())
	case errors.Is(err, domain.ErrStorage):
		return status.Errorf(codes.Unavailable, "%s", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s", err.Error())
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s", err.Error())
	}

	// Default to Internal error for unknown errors
	return status.Errorf(codes.Internal, "%s", err.Error())
}
