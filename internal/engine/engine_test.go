package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dexcore/matching-engine/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&types.Order{}, &types.Trade{}))
	return db
}

// fixture wires a matching service over a fresh registry and ledger and
// hands out sequenced orders.
type fixture struct {
	t   *testing.T
	svc *Service
	seq atomic.Uint64
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	return &fixture{
		t:   t,
		svc: NewService(newTestDB(t), NewRegistry(), opts),
	}
}

func (f *fixture) order(user, pair string, side types.Side, orderType types.OrderType, price, amount string) *types.Order {
	a := decimal.RequireFromString(amount)
	o := &types.Order{
		OrderID:         uuid.New().String(),
		UserID:          user,
		Pair:            pair,
		Side:            side,
		OrderType:       orderType,
		Amount:          a,
		RemainingAmount: a,
		Status:          types.StatusOpen,
		Sequence:        f.seq.Add(1),
	}
	if price != "" {
		o.Price = decimal.RequireFromString(price)
	}
	return o
}

// rest places a limit order into the pair's book the way the order service
// does on acceptance.
func (f *fixture) rest(user, pair string, side types.Side, price, amount string) *types.Order {
	f.t.Helper()

	o := f.order(user, pair, side, types.OrderTypeLimit, price, amount)
	b := f.svc.registry.GetOrCreate(pair)
	b.Lock()
	err := b.Insert(o)
	b.Unlock()
	require.NoError(f.t, err)
	return o
}

func (f *fixture) assertNotCrossed(pair string) {
	f.t.Helper()

	b, ok := f.svc.registry.Get(pair)
	if !ok {
		return
	}
	b.Lock()
	defer b.Unlock()
	assert.False(f.t, b.Crossed(), "book for %s remains crossed after a match pass", pair)
}

func TestFullFill(t *testing.T) {
	f := newFixture(t, Options{})

	sell := f.rest("user2", "BTC/USDT", types.SideSell, "50000", "100")
	buy := f.rest("user1", "BTC/USDT", types.SideBuy, "50000", "100")

	trades, err := f.svc.MatchPair("BTC/USDT")
	require.NoError(t, err)
	require.Len(t, trades, 1)

	trade := trades[0]
	assert.True(t, trade.Quantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, trade.Price.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, "user1", trade.BuyerID)
	assert.Equal(t, "user2", trade.SellerID)
	assert.Equal(t, buy.OrderID, trade.BuyOrderID)
	assert.Equal(t, sell.OrderID, trade.SellOrderID)

	assert.Equal(t, types.StatusFilled, buy.Status)
	assert.Equal(t, types.StatusFilled, sell.Status)

	snap, err := f.svc.Snapshot("BTC/USDT")
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)

	// The pass is persisted: the trade is in the ledger.
	ledger, err := f.svc.Trades("BTC/USDT")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, trade.TradeID, ledger[0].TradeID)

	f.assertNotCrossed("BTC/USDT")
}

func TestPartialFill(t *testing.T) {
	f := newFixture(t, Options{})

	sell := f.rest("user2", "BTC/USDT", types.SideSell, "50000", "100")
	f.rest("user1", "BTC/USDT", types.SideBuy, "50000", "40")

	trades, err := f.svc.MatchPair("BTC/USDT")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Quantity.Equal(decimal.NewFromInt(40)))

	assert.Equal(t, types.StatusPartiallyFilled, sell.Status)
	assert.True(t, sell.RemainingAmount.Equal(decimal.NewFromInt(60)))

	snap, err := f.svc.Snapshot("BTC/USDT")
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
	require.Len(t, snap.Asks, 1)
	assert.True(t, snap.Asks[0].Price.Equal(decimal.NewFromInt(50000)))
	assert.True(t, snap.Asks[0].Quantity.Equal(decimal.NewFromInt(60)))
}

func TestNoCross(t *testing.T) {
	f := newFixture(t, Options{})

	f.rest("user1", "BTC/USDT", types.SideBuy, "100", "10")
	f.rest("user2", "BTC/USDT", types.SideSell, "200", "10")

	trades, err := f.svc.MatchPair("BTC/USDT")
	require.NoError(t, err)
	assert.Empty(t, trades)

	snap, err := f.svc.Snapshot("BTC/USDT")
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Asks, 1)
}

func TestMatchPairWithoutBook(t *testing.T) {
	f := newFixture(t, Options{})

	trades, err := f.svc.MatchPair("NO/PAIR")
	require.NoError(t, err)
	assert.NotNil(t, trades)
	assert.Empty(t, trades)
}

func TestTimePriorityAtSamePrice(t *testing.T) {
	f := newFixture(t, Options{})

	first := f.rest("user1", "BTC/USDT", types.SideSell, "100", "5")
	second := f.rest("user2", "BTC/USDT", types.SideSell, "100", "5")
	f.rest("user3", "BTC/USDT", types.SideBuy, "100", "5")

	trades, err := f.svc.MatchPair("BTC/USDT")
	require.NoError(t, err)
	require.Len(t, trades, 1)

	// The earlier sequence at the level trades first.
	assert.Equal(t, first.OrderID, trades[0].SellOrderID)
	assert.Equal(t, types.StatusFilled, first.Status)
	assert.Equal(t, types.StatusOpen, second.Status)
}

func TestMakerPriceRule(t *testing.T) {
	t.Run("resting ask sets the price", func(t *testing.T) {
		f := newFixture(t, Options{})

		f.rest("user1", "BTC/USDT", types.SideSell, "100", "1")
		f.rest("user2", "BTC/USDT", types.SideBuy, "110", "1")

		trades, err := f.svc.MatchPair("BTC/USDT")
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(100)))
	})

	t.Run("resting bid sets the price", func(t *testing.T) {
		f := newFixture(t, Options{})

		f.rest("user1", "BTC/USDT", types.SideBuy, "110", "1")
		f.rest("user2", "BTC/USDT", types.SideSell, "100", "1")

		trades, err := f.svc.MatchPair("BTC/USDT")
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(110)))
	})
}

func TestMultiLevelSweep(t *testing.T) {
	f := newFixture(t, Options{})

	f.rest("s1", "BTC/USDT", types.SideSell, "100", "4")
	f.rest("s2", "BTC/USDT", types.SideSell, "102", "4")
	f.rest("s3", "BTC/USDT", types.SideSell, "103", "5")
	f.rest("b1", "BTC/USDT", types.SideBuy, "105", "10")

	trades, err := f.svc.MatchPair("BTC/USDT")
	require.NoError(t, err)
	require.Len(t, trades, 3)

	assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, trades[0].Quantity.Equal(decimal.NewFromInt(4)))
	assert.True(t, trades[1].Price.Equal(decimal.NewFromInt(102)))
	assert.True(t, trades[1].Quantity.Equal(decimal.NewFromInt(4)))
	assert.True(t, trades[2].Price.Equal(decimal.NewFromInt(103)))
	assert.True(t, trades[2].Quantity.Equal(decimal.NewFromInt(2)))

	snap, err := f.svc.Snapshot("BTC/USDT")
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
	require.Len(t, snap.Asks, 1)
	assert.True(t, snap.Asks[0].Quantity.Equal(decimal.NewFromInt(3)))

	f.assertNotCrossed("BTC/USDT")
}

func TestQuantityConservation(t *testing.T) {
	f := newFixture(t, Options{})

	sell := f.rest("user2", "BTC/USDT", types.SideSell, "100", "10")
	f.rest("user1", "BTC/USDT", types.SideBuy, "100", "3")
	f.rest("user1", "BTC/USDT", types.SideBuy, "100", "4")
	f.rest("user1", "BTC/USDT", types.SideBuy, "100", "5")

	trades, err := f.svc.MatchPair("BTC/USDT")
	require.NoError(t, err)

	total := decimal.Zero
	for _, trade := range trades {
		assert.Equal(t, sell.OrderID, trade.SellOrderID)
		total = total.Add(trade.Quantity)
	}
	assert.True(t, total.LessThanOrEqual(sell.Amount))
	assert.True(t, sell.RemainingAmount.Add(total).Equal(sell.Amount))
}

func TestMatchAllFlattensAcrossPairs(t *testing.T) {
	f := newFixture(t, Options{})

	f.rest("user1", "BTC/USDT", types.SideBuy, "50000", "1")
	f.rest("user2", "BTC/USDT", types.SideSell, "50000", "1")
	f.rest("user3", "ETH/USDT", types.SideBuy, "2500", "2")
	f.rest("user4", "ETH/USDT", types.SideSell, "2500", "2")
	f.rest("user5", "SOL/USDT", types.SideBuy, "100", "1") // no counterparty

	trades, err := f.svc.MatchAll()
	require.NoError(t, err)
	require.Len(t, trades, 2)

	pairs := map[string]bool{}
	for _, trade := range trades {
		pairs[trade.Pair] = true
	}
	assert.True(t, pairs["BTC/USDT"])
	assert.True(t, pairs["ETH/USDT"])

	f.assertNotCrossed("BTC/USDT")
	f.assertNotCrossed("ETH/USDT")
	f.assertNotCrossed("SOL/USDT")
}

func TestSelfTrade(t *testing.T) {
	t.Run("allowed by default", func(t *testing.T) {
		f := newFixture(t, Options{})

		f.rest("user1", "BTC/USDT", types.SideSell, "100", "1")
		f.rest("user1", "BTC/USDT", types.SideBuy, "100", "1")

		trades, err := f.svc.MatchPair("BTC/USDT")
		require.NoError(t, err)
		assert.Len(t, trades, 1)
	})

	t.Run("reject cancels the younger order", func(t *testing.T) {
		f := newFixture(t, Options{SelfTradePolicy: SelfTradeReject})

		older := f.rest("user1", "BTC/USDT", types.SideSell, "100", "1")
		younger := f.rest("user1", "BTC/USDT", types.SideBuy, "100", "1")

		trades, err := f.svc.MatchPair("BTC/USDT")
		require.NoError(t, err)
		assert.Empty(t, trades)

		assert.Equal(t, types.StatusCancelled, younger.Status)
		assert.Equal(t, types.StatusOpen, older.Status)

		snap, err := f.svc.Snapshot("BTC/USDT")
		require.NoError(t, err)
		assert.Empty(t, snap.Bids)
		require.Len(t, snap.Asks, 1)
	})

	t.Run("reject still matches other users", func(t *testing.T) {
		f := newFixture(t, Options{SelfTradePolicy: SelfTradeReject})

		f.rest("user1", "BTC/USDT", types.SideSell, "100", "1")
		f.rest("user1", "BTC/USDT", types.SideBuy, "100", "1")
		f.rest("user2", "BTC/USDT", types.SideBuy, "100", "1")

		trades, err := f.svc.MatchPair("BTC/USDT")
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, "user2", trades[0].BuyerID)
	})
}

func TestExecuteMarketDiscard(t *testing.T) {
	t.Run("fully filled", func(t *testing.T) {
		f := newFixture(t, Options{})

		f.rest("user2", "BTC/USDT", types.SideSell, "100", "10")
		market := f.order("user1", "BTC/USDT", types.SideBuy, types.OrderTypeMarket, "", "10")

		trades, err := f.svc.ExecuteMarket(market)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, types.StatusFilled, market.Status)
	})

	t.Run("remainder discarded", func(t *testing.T) {
		f := newFixture(t, Options{})

		f.rest("user2", "BTC/USDT", types.SideSell, "100", "4")
		market := f.order("user1", "BTC/USDT", types.SideBuy, types.OrderTypeMarket, "", "10")

		trades, err := f.svc.ExecuteMarket(market)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.True(t, trades[0].Quantity.Equal(decimal.NewFromInt(4)))
		assert.Equal(t, types.StatusPartiallyFilled, market.Status)

		// The remainder never rests.
		snap, err := f.svc.Snapshot("BTC/USDT")
		require.NoError(t, err)
		assert.Empty(t, snap.Bids)
		assert.Empty(t, snap.Asks)
	})

	t.Run("empty book cancels", func(t *testing.T) {
		f := newFixture(t, Options{})

		market := f.order("user1", "BTC/USDT", types.SideSell, types.OrderTypeMarket, "", "10")

		trades, err := f.svc.ExecuteMarket(market)
		require.NoError(t, err)
		assert.Empty(t, trades)
		assert.Equal(t, types.StatusCancelled, market.Status)
	})
}

func TestExecuteMarketReject(t *testing.T) {
	f := newFixture(t, Options{MarketPolicy: MarketPolicyReject})

	resting := f.rest("user2", "BTC/USDT", types.SideSell, "100", "4")
	market := f.order("user1", "BTC/USDT", types.SideBuy, types.OrderTypeMarket, "", "10")

	trades, err := f.svc.ExecuteMarket(market)
	require.Error(t, err)
	assert.Empty(t, trades)

	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)

	// The whole order is refused and the book is untouched.
	assert.True(t, resting.RemainingAmount.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, types.StatusOpen, resting.Status)

	snap, err := f.svc.Snapshot("BTC/USDT")
	require.NoError(t, err)
	require.Len(t, snap.Asks, 1)
	assert.True(t, snap.Asks[0].Quantity.Equal(decimal.NewFromInt(4)))

	// Nothing was persisted for the rejected order.
	ledger, err := f.svc.Trades("BTC/USDT")
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestPassRollbackOnPersistFailure(t *testing.T) {
	f := newFixture(t, Options{})

	sell := f.rest("user2", "BTC/USDT", types.SideSell, "50000", "100")
	buy := f.rest("user1", "BTC/USDT", types.SideBuy, "50000", "100")

	// Force the ledger write to fail mid-pass.
	require.NoError(t, f.svc.db.db.Migrator().DropTable(&types.Trade{}))

	trades, err := f.svc.MatchPair("BTC/USDT")
	require.Error(t, err)
	assert.Empty(t, trades)

	var fault *types.InternalFault
	assert.ErrorAs(t, err, &fault)

	// All-or-nothing: the book is back in its pre-pass state.
	assert.Equal(t, types.StatusOpen, sell.Status)
	assert.Equal(t, types.StatusOpen, buy.Status)
	assert.True(t, sell.RemainingAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, buy.RemainingAmount.Equal(decimal.NewFromInt(100)))

	snap, err := f.svc.Snapshot("BTC/USDT")
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Asks, 1)
}

func TestSnapshotUnknownPair(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Snapshot("NO/PAIR")
	require.Error(t, err)

	var nferr *types.NotFoundError
	assert.ErrorAs(t, err, &nferr)
}

func TestConcurrentSubmissionsThenMatch(t *testing.T) {
	f := newFixture(t, Options{})

	const perSide = 50
	var wg sync.WaitGroup
	wg.Add(2 * perSide)

	for i := 0; i < perSide; i++ {
		go func(i int) {
			defer wg.Done()
			f.rest(fmt.Sprintf("buyer-%d", i), "BTC/USDT", types.SideBuy, "100", "1")
		}(i)
		go func(i int) {
			defer wg.Done()
			f.rest(fmt.Sprintf("seller-%d", i), "BTC/USDT", types.SideSell, "100", "1")
		}(i)
	}
	wg.Wait()

	trades, err := f.svc.MatchPair("BTC/USDT")
	require.NoError(t, err)
	assert.Len(t, trades, perSide)

	total := decimal.Zero
	for _, trade := range trades {
		total = total.Add(trade.Quantity)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(perSide)))

	snap, err := f.svc.Snapshot("BTC/USDT")
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
}

func TestRegistryLazyCreation(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("BTC/USDT")
	assert.False(t, ok)

	b := r.GetOrCreate("BTC/USDT")
	require.NotNil(t, b)

	again := r.GetOrCreate("BTC/USDT")
	assert.Same(t, b, again)

	other := r.GetOrCreate("ETH/USDT")
	assert.NotSame(t, b, other)

	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, r.Pairs())
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry()

	const goroutines = 32
	books := make([]interface{}, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			books[i] = r.GetOrCreate("BTC/USDT")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, books[0], books[i])
	}
}

func TestTradeLedgerOrderAcrossRestarts(t *testing.T) {
	db := newTestDB(t)

	matchOnce := func(svc *Service) *types.Trade {
		var seq atomic.Uint64
		rest := func(user string, side types.Side) {
			a := decimal.NewFromInt(1)
			o := &types.Order{
				OrderID:         uuid.New().String(),
				UserID:          user,
				Pair:            "BTC/USDT",
				Side:            side,
				OrderType:       types.OrderTypeLimit,
				Price:           decimal.NewFromInt(100),
				Amount:          a,
				RemainingAmount: a,
				Status:          types.StatusOpen,
				Sequence:        seq.Add(1),
			}
			b := svc.registry.GetOrCreate("BTC/USDT")
			b.Lock()
			require.NoError(t, b.Insert(o))
			b.Unlock()
		}

		rest("user1", types.SideSell)
		rest("user2", types.SideBuy)

		trades, err := svc.MatchPair("BTC/USDT")
		require.NoError(t, err)
		require.Len(t, trades, 1)
		return trades[0]
	}

	// Two services over the same ledger stand in for a process restart:
	// in-memory books and counters start over, the persisted rows remain.
	before := matchOnce(NewService(db, NewRegistry(), Options{}))
	restarted := NewService(db, NewRegistry(), Options{})
	after := matchOnce(restarted)

	// Both trades carry the same in-process sequence; the ledger must still
	// report them oldest first.
	assert.Equal(t, before.Sequence, after.Sequence)

	ledger, err := restarted.Trades("BTC/USDT")
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, before.TradeID, ledger[0].TradeID)
	assert.Equal(t, after.TradeID, ledger[1].TradeID)
}
