package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	minOrders     = 20
	maxOrders     = 200
	numWorkers    = 5
	serverAddress = "http://localhost:8085"
)

var (
	pairs = []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}
	sides = []string{"Buy", "Sell"}

	// Mid prices per pair; submissions scatter around these so some cross
	// and some rest.
	midPrices = map[string]float64{
		"BTC/USDT": 50000,
		"ETH/USDT": 2500,
		"SOL/USDT": 150,
	}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
	mu         sync.Mutex
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// addFailure records a failed call
func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the matching engine API
type simulationClient struct {
	baseURL     string
	client      *http.Client
	stats       map[string]*routeStats
	submitLimit *rate.Limiter
}

// newSimulationClient creates and initializes a new simulation client
func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		stats: map[string]*routeStats{
			"create": {name: "Create Order"},
			"match":  {name: "Trigger Match"},
			"book":   {name: "Order Book"},
		},
		// The server throttles /api/orders per client IP (300/min, burst 5).
		// All workers share one IP, so submissions are paced just under that.
		submitLimit: rate.NewLimiter(rate.Limit(4), 4),
	}
}

type orderRequest struct {
	UserID    string           `json:"user_id"`
	Pair      string           `json:"pair"`
	Side      string           `json:"side"`
	OrderType string           `json:"order_type"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Amount    decimal.Decimal  `json:"amount"`
}

// createOrder submits a new order and returns its id
func (sc *simulationClient) createOrder(order *orderRequest) (string, error) {
	if err := sc.submitLimit.Wait(context.Background()); err != nil {
		return "", err
	}

	start := time.Now()
	defer func() {
		sc.stats["create"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(order)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/orders", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		sc.stats["create"].addFailure()
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		sc.stats["create"].addFailure()
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("create order failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.OrderID, nil
}

// triggerMatch runs a batch matching pass and returns the number of trades
func (sc *simulationClient) triggerMatch() (int, error) {
	start := time.Now()
	defer func() {
		sc.stats["match"].addDuration(time.Since(start))
	}()

	resp, err := sc.client.Post(fmt.Sprintf("%s/api/match", sc.baseURL), "application/json", nil)
	if err != nil {
		sc.stats["match"].addFailure()
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		sc.stats["match"].addFailure()
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("match failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Trades []json.RawMessage `json:"trades"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}

	return len(result.Trades), nil
}

// getOrderBook fetches the aggregated book for a pair
func (sc *simulationClient) getOrderBook(pair string) (bids, asks int, err error) {
	start := time.Now()
	defer func() {
		sc.stats["book"].addDuration(time.Since(start))
	}()

	resp, err := sc.client.Get(fmt.Sprintf("%s/api/orderbook/%s", sc.baseURL, url.PathEscape(pair)))
	if err != nil {
		sc.stats["book"].addFailure()
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		sc.stats["book"].addFailure()
		return 0, 0, fmt.Errorf("order book query failed with status %d", resp.StatusCode)
	}

	var result struct {
		Pair string            `json:"pair"`
		Bids []json.RawMessage `json:"bids"`
		Asks []json.RawMessage `json:"asks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, 0, err
	}

	return len(result.Bids), len(result.Asks), nil
}

// randomOrder builds a plausible order around the pair's mid price
func randomOrder() *orderRequest {
	pair := pairs[rand.Intn(len(pairs))]
	side := sides[rand.Intn(len(sides))]

	mid := midPrices[pair]
	// Scatter within ±2% of mid so the sides overlap often enough to cross
	price := decimal.NewFromFloat(mid * (1 + (rand.Float64()*0.04 - 0.02))).Round(2)
	amount := decimal.NewFromFloat(rand.Float64()*10 + 0.1).Round(4)

	return &orderRequest{
		UserID:    fmt.Sprintf("sim-user-%d", rand.Intn(20)+1),
		Pair:      pair,
		Side:      side,
		OrderType: "Limit",
		Price:     &price,
		Amount:    amount,
	}
}

// printStats logs the collected route statistics
func (sc *simulationClient) printStats() {
	for _, rs := range sc.stats {
		min, max, mean, median, p95, p99 := rs.calculate()
		log.Info().
			Str("route", rs.name).
			Int("calls", rs.totalCalls).
			Int("failures", rs.failures).
			Dur("min", min).
			Dur("max", max).
			Dur("mean", mean).
			Dur("median", median).
			Dur("p95", p95).
			Dur("p99", p99).
			Msg("route statistics")
	}
}

// main floods the engine with concurrent submissions, triggers matching
// passes, and reports per-route latency statistics
func main() {
	sc := newSimulationClient()

	numOrders := rand.Intn(maxOrders-minOrders+1) + minOrders
	log.Info().
		Int("orders", numOrders).
		Int("workers", numWorkers).
		Str("server", serverAddress).
		Msg("starting simulation")

	jobs := make(chan *orderRequest, numOrders)
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for order := range jobs {
				if _, err := sc.createOrder(order); err != nil {
					log.Warn().Err(err).Msg("order submission failed")
				}
			}
		}()
	}

	for i := 0; i < numOrders; i++ {
		jobs <- randomOrder()
	}
	close(jobs)
	wg.Wait()

	// Trigger a batch matching pass across all pairs
	trades, err := sc.triggerMatch()
	if err != nil {
		log.Error().Err(err).Msg("matching pass failed")
	} else {
		log.Info().Int("trades", trades).Msg("matching pass completed")
	}

	// Inspect the residual books
	for _, pair := range pairs {
		bids, asks, err := sc.getOrderBook(pair)
		if err != nil {
			log.Warn().Err(err).Str("pair", pair).Msg("order book query failed")
			continue
		}
		log.Info().
			Str("pair", pair).
			Int("bid_levels", bids).
			Int("ask_levels", asks).
			Msg("residual order book")
	}

	sc.printStats()
}
