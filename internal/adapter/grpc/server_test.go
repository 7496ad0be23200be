package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/networth-backend/internal/adapter/repository/memory"
	"github.com/simaogato/networth-backend/internal/domain"
	"github.com/simaogato/networth-backend/internal/usecase/brokerage"
	"github.com/simaogato/networth-backend/internal/usecase/catalog"
	"github.com/simaogato/networth-backend/internal/usecase/exchangerate"
	"github.com/simaogato/networth-backend/internal/usecase/portfolio"
	"github.com/simaogato/networth-backend/internal/usecase/snapshot"
)

const testToken = "test-token"

// startServer serves NetWorthService over an in-memory listener
func startServer(t *testing.T) *Client {
	t.Helper()

	store := memory.NewStore()
	table := &exchangerate.RateTable{
		Rates: map[domain.Currency]map[domain.Currency]decimal.Decimal{
			"USD": {"EUR": decimal.RequireFromString("0.9")},
		},
	}
	resolver := exchangerate.NewResolver(store.Repos().ExchangeRates,
		exchangerate.WithProvider(exchangerate.NewStaticProvider(table)))

	server := NewServer(
		catalog.NewCatalogService(store, nil),
		snapshot.NewSnapshotService(store, resolver, nil),
		brokerage.NewBrokerageService(store, resolver, nil),
		portfolio.NewPortfolioService(store, nil),
		resolver,
	)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		LoggingInterceptor(nil),
		AuthInterceptor(&Authenticator{StaticToken: testToken, StaticOwner: "alice"}),
		RateLimitInterceptor(NewOwnerRateLimiter(1000, 1000), nil),
	))
	RegisterNetWorthServiceServer(srv, server)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewClient(conn)
}

func authed() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+testToken), cancel
}

func field(s *structpb.Struct, path ...string) *structpb.Value {
	v := structpb.NewStructValue(s)
	for _, key := range path {
		v = v.GetStructValue().GetFields()[key]
	}
	return v
}

func decimalAt(t *testing.T, s *structpb.Struct, path ...string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(field(s, path...).GetStringValue())
	require.NoError(t, err)
	return d
}

func TestServer_BrokerageSplitAndSummary(t *testing.T) {
	client := startServer(t)
	ctx, cancel := authed()
	defer cancel()

	inst, err := client.Call(ctx, "CreateInstitution", map[string]interface{}{"name": "Broker"})
	require.NoError(t, err)
	institutionID := field(inst, "institution", "id").GetStringValue()

	acc, err := client.Call(ctx, "CreateAccount", map[string]interface{}{
		"institutionId": institutionID,
		"name":          "Brokerage",
		"type":          "brokerage_total",
		"currency":      "EUR",
	})
	require.NoError(t, err)
	accountID := field(acc, "account", "id").GetStringValue()
	assert.Equal(t, "BROKERAGE_TOTAL", field(acc, "account", "type").GetStringValue())

	split, err := client.Call(ctx, "ApplyBrokerageSplit", map[string]interface{}{
		"accountId":  accountID,
		"totalValue": "1000",
		"cashValue":  "200",
		"currency":   "EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, "Brokerage - Cash", field(split, "cashAccount", "name").GetStringValue())
	assert.Equal(t, "Brokerage - Investments", field(split, "investmentAccount", "name").GetStringValue())
	assert.True(t, decimalAt(t, split, "snapshots", "investment", "value").Equal(decimal.NewFromInt(800)))

	summary, err := client.Call(ctx, "GetSummary", map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, decimalAt(t, summary, "totalValueEur").Equal(decimal.NewFromInt(1000)))

	accounts, err := client.Call(ctx, "ListAccounts", map[string]interface{}{})
	require.NoError(t, err)
	assert.Len(t, field(accounts, "accounts").GetListValue().GetValues(), 3)
}

func TestServer_RecordSnapshotAndConvert(t *testing.T) {
	client := startServer(t)
	ctx, cancel := authed()
	defer cancel()

	inst, err := client.Call(ctx, "CreateInstitution", map[string]interface{}{"name": "Bank"})
	require.NoError(t, err)
	acc, err := client.Call(ctx, "CreateAccount", map[string]interface{}{
		"institutionId": field(inst, "institution", "id").GetStringValue(),
		"name":          "Dollars",
		"type":          "CHECKING",
		"currency":      "USD",
	})
	require.NoError(t, err)

	recorded, err := client.Call(ctx, "RecordSnapshot", map[string]interface{}{
		"accountId": field(acc, "account", "id").GetStringValue(),
		"date":      "2024-01-15",
		"value":     "100",
	})
	require.NoError(t, err)
	assert.True(t, decimalAt(t, recorded, "snapshot", "valueEur").Equal(decimal.NewFromInt(90)))
	assert.Equal(t, "provider", field(recorded, "rate", "source").GetStringValue())
	assert.False(t, field(recorded, "rate", "degraded").GetBoolValue())

	converted, err := client.Call(ctx, "ConvertCurrency", map[string]interface{}{
		"amount": "10",
		"from":   "USD",
		"to":     "EUR",
		"date":   "2024-01-15",
	})
	require.NoError(t, err)
	assert.True(t, decimalAt(t, converted, "converted").Equal(decimal.NewFromInt(9)))
	assert.Equal(t, "cache", field(converted, "rate", "source").GetStringValue())
}

func TestServer_ErrorMapping(t *testing.T) {
	client := startServer(t)

	_, err := client.Call(context.Background(), "ListAccounts", map[string]interface{}{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx, cancel := authed()
	defer cancel()

	_, err = client.Call(ctx, "RecordSnapshot", map[string]interface{}{
		"accountId": "not-a-uuid",
		"value":     "1",
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Call(ctx, "RecordSnapshot", map[string]interface{}{
		"accountId": "6f1c2a9e-0d7b-4c43-9a53-2f0d1b4b8e11",
		"value":     "1",
	})
	assert.Equal(t, codes.NotFound, status.Code(err))

	inst, err := client.Call(ctx, "CreateInstitution", map[string]interface{}{"name": "Broker"})
	require.NoError(t, err)
	acc, err := client.Call(ctx, "CreateAccount", map[string]interface{}{
		"institutionId": field(inst, "institution", "id").GetStringValue(),
		"name":          "Brokerage",
		"type":          "BROKERAGE_TOTAL",
		"currency":      "EUR",
	})
	require.NoError(t, err)

	_, err = client.Call(ctx, "ApplyBrokerageSplit", map[string]interface{}{
		"accountId":  field(acc, "account", "id").GetStringValue(),
		"totalValue": "100",
		"cashValue":  "150",
		"currency":   "EUR",
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_UpdateAccountRenamesChildren(t *testing.T) {
	client := startServer(t)
	ctx, cancel := authed()
	defer cancel()

	inst, err := client.Call(ctx, "CreateInstitution", map[string]interface{}{"name": "Broker"})
	require.NoError(t, err)
	institutionID := field(inst, "institution", "id").GetStringValue()

	renamed, err := client.Call(ctx, "UpdateInstitution", map[string]interface{}{
		"institutionId": institutionID,
		"name":          "Broker Ltd",
	})
	require.NoError(t, err)
	assert.Equal(t, "Broker Ltd", field(renamed, "institution", "name").GetStringValue())

	acc, err := client.Call(ctx, "CreateAccount", map[string]interface{}{
		"institutionId": institutionID,
		"name":          "Brokerage",
		"type":          "BROKERAGE_TOTAL",
		"currency":      "EUR",
	})
	require.NoError(t, err)
	accountID := field(acc, "account", "id").GetStringValue()

	_, err = client.Call(ctx, "ApplyBrokerageSplit", map[string]interface{}{
		"accountId":  accountID,
		"totalValue": "1000",
		"cashValue":  "200",
		"currency":   "EUR",
	})
	require.NoError(t, err)

	updated, err := client.Call(ctx, "UpdateAccount", map[string]interface{}{
		"accountId": accountID,
		"name":      "ISA",
	})
	require.NoError(t, err)
	assert.Equal(t, "ISA", field(updated, "account", "name").GetStringValue())
	assert.Equal(t, "BROKERAGE_TOTAL", field(updated, "account", "type").GetStringValue())

	accounts, err := client.Call(ctx, "ListAccounts", map[string]interface{}{})
	require.NoError(t, err)
	var names []string
	for _, v := range field(accounts, "accounts").GetListValue().GetValues() {
		names = append(names, v.GetStructValue().GetFields()["name"].GetStringValue())
	}
	assert.ElementsMatch(t, []string{"ISA", "ISA - Cash", "ISA - Investments"}, names)

	_, err = client.Call(ctx, "UpdateAccount", map[string]interface{}{
		"accountId": accountID,
		"type":      "SAVINGS",
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
