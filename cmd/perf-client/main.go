package main

import (
	"context"
	"fmt"
	"net/http"
	"math/rand"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"connectrpc.com/connect"

	"github.com/kkkkikiki/pizzeria/internal/coupon"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/service"
)

// PerfResult gathers the counters of one run. Latencies are nanoseconds.
type PerfResult struct {
	TotalRequests  int64
	SuccessCount   int64
	ExhaustedCount int64
	ErrorCount     int64
	LatencySum     int64
	P50Latency     int64
	P95Latency     int64
	P99Latency     int64

	// codes handed out during the run, to catch double allocation
	codes     sync.Map
	Duplicate int64
}

const (
	fixedWorkers    = 50
	fixedRPSTarget  = 700
	fixedDuration   = 30 * time.Second
	defaultTimeout  = 30 * time.Second
	fixedCoupons    = 50000
	fixedCreateCamp = true
	defaultBaseURL  = "http://localhost:8080"
)

func main() {
	// ─── Fixed Configuration ─────────────────────────────────────
	baseURL := defaultBaseURL
	if v := os.Getenv("PERF_BASE_URL"); v != "" {
		baseURL = v
	}
	campaign := os.Getenv("PERF_CAMPAIGN")
	prefix := ""
	rps := fixedRPSTarget
	duration := fixedDuration
	workers := fixedWorkers
	createCampaign := fixedCreateCamp
	coupons := fixedCoupons

	// ─── HTTP Client & Transport ─────────────────────────────────
	transport := &http.Transport{
		MaxIdleConns:        workers * 4,
		MaxIdleConnsPerHost: workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}
	client := service.NewCouponServiceClient(httpClient, baseURL)

	// ─── Campaign handling ───────────────────────────────────────
	if campaign == "" || createCampaign {
		var err error
		campaign, prefix, err = createNewCampaign(client, coupons)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create campaign: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✅ 새 캠페인 생성됨: %s (%d개 쿠폰, prefix %s)\n", campaign, coupons, prefix)
	} else {
		prefix = strings.ToUpper(campaign)
	}

	// ─── Banner ──────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("🚀 Go 고성능 부하 테스트 클라이언트 (uniform)")
	fmt.Println("==========================================")
	fmt.Printf("캠페인     : %s\n", campaign)
	fmt.Printf("RPS   : %d\n", rps)
	fmt.Printf("테스트 시간: %v\n", duration)
	fmt.Println("==========================================")

	// ─── Rate limiter & context ─────────────────────────────────
	burst := rps / workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup
	var claimant int64

	// latencyChan feeds the percentile sampler.
	latencyChan := make(chan time.Duration, 4096)
	sampled := make(chan struct{})
	go sampleLatencies(latencyChan, &result, sampled)

	// ─── Workers ────────────────────────────────────────────────
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil { // context cancelled → exit
					return
				}
				id := atomic.AddInt64(&claimant, 1)
				doRequest(client, prefix, "perf-"+strconv.FormatInt(id, 10), &result, latencyChan)
			}
		}()
	}

	start := time.Now()
	<-ctx.Done() // wait for duration

	// ─── Cleanup ────────────────────────────────────────────────
	wg.Wait()
	close(latencyChan)

	totalDur := time.Since(start)

	<-sampled
	result.report(totalDur)

	// ─── Data Consistency Check ─────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("🔍 데이터 정합성 검증")
	fmt.Println("==========================================")

	if err := verifyDataConsistency(client, campaign, &result); err != nil {
		fmt.Printf("❌ 정합성 검증 실패: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ 데이터 정합성 확인 완료")
	fmt.Println("==========================================")
}

func (r *PerfResult) report(elapsed time.Duration) {
	rule := strings.Repeat("=", 42)
	var successRate, avg float64
	if r.TotalRequests > 0 {
		successRate = float64(r.SuccessCount) / float64(r.TotalRequests) * 100
	}
	if r.SuccessCount > 0 {
		avg = float64(r.LatencySum) / float64(r.SuccessCount)
	}

	fmt.Println(rule)
	fmt.Println("📊 성능 테스트 결과")
	fmt.Println(rule)
	rows := []struct {
		label string
		value any
	}{
		{"테스트 시간", elapsed.Round(time.Millisecond)},
		{"총 요청 수", r.TotalRequests},
		{"발급 성공", r.SuccessCount},
		{"풀 소진", r.ExhaustedCount},
		{"실패", r.ErrorCount},
		{"처리량 (claims/s)", fmt.Sprintf("%.2f", float64(r.SuccessCount)/elapsed.Seconds())},
		{"성공률", fmt.Sprintf("%.2f%%", successRate)},
		{"평균 레이턴시", time.Duration(avg)},
		{"P50 / P95 / P99", fmt.Sprintf("%v / %v / %v",
			time.Duration(r.P50Latency), time.Duration(r.P95Latency), time.Duration(r.P99Latency))},
	}
	for _, row := range rows {
		fmt.Printf("%-18s: %v\n", row.label, row.value)
	}
	fmt.Println(rule)
}

// createNewCampaign generates a fresh batch of amount coupons under a
// unique prefix, so the run draws from its own pool.
func createNewCampaign(client *service.CouponServiceClient, coupons int) (string, string, error) {
	stamp := strings.ToUpper(strconv.FormatInt(time.Now().Unix(), 36))
	campaign := "perf-" + strings.ToLower(stamp)
	prefix := "PF" + stamp

	req := connect.NewRequest(&coupon.BatchSpec{
		Campaign: campaign,
		Prefix:   prefix,
		Count:    coupons,
		Kind:     model.KindAmount,
		Amount:   decimal.NewNullDecimal(decimal.NewFromInt(5)),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	resp, err := client.GenerateBatch(ctx, req)
	if err != nil {
		return "", "", fmt.Errorf("generate batch failed: %w", err)
	}
	if len(resp.Msg.Codes) != coupons {
		return "", "", fmt.Errorf("batch returned %d codes, want %d", len(resp.Msg.Codes), coupons)
	}
	return campaign, prefix, nil
}

// doRequest performs a single ClaimCoupon RPC and collects metrics.
func doRequest(client *service.CouponServiceClient, prefix, claimant string, result *PerfResult, latencyChan chan<- time.Duration) {
	// Use independent context to avoid cancellation when test ends
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	req := connect.NewRequest(&service.ClaimCouponRequest{IssueRequest: coupon.IssueRequest{
		Prefix:     prefix,
		Hours:      24,
		CustomerID: claimant,
		Channel:    "perf",
	}})

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	resp, err := client.ClaimCoupon(ctx, req)
	latency := time.Since(start)

	if err != nil {
		if connect.CodeOf(err) == connect.CodeResourceExhausted {
			atomic.AddInt64(&result.ExhaustedCount, 1)
			return
		}
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}
	if code := resp.Msg.Coupon.Code; code != "" {
		if _, dup := result.codes.LoadOrStore(code, claimant); dup {
			atomic.AddInt64(&result.Duplicate, 1)
		}
		atomic.AddInt64(&result.SuccessCount, 1)
		atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
		select {
		case latencyChan <- latency:
		default:
		}
	} else {
		atomic.AddInt64(&result.ErrorCount, 1)
	}
}

// sampleLatencies keeps a reservoir of latencies and writes the P50, P95
// and P99 into result once the channel closes.
func sampleLatencies(latencies <-chan time.Duration, result *PerfResult, done chan<- struct{}) {
	defer close(done)

	const size = 4096
	reservoir := make([]int64, 0, size)
	var seen int64
	for lat := range latencies {
		seen++
		if len(reservoir) < size {
			reservoir = append(reservoir, lat.Nanoseconds())
			continue
		}
		if j := rand.Int63n(seen); j < size {
			reservoir[j] = lat.Nanoseconds()
		}
	}
	if len(reservoir) == 0 {
		return
	}

	slices.Sort(reservoir)
	at := func(q float64) int64 {
		return reservoir[int(q*float64(len(reservoir)-1))]
	}
	result.P50Latency = at(0.50)
	result.P95Latency = at(0.95)
	result.P99Latency = at(0.99)
}

// verifyDataConsistency checks that every successful claim got its own
// coupon and that the database agrees with the client's count.
func verifyDataConsistency(client *service.CouponServiceClient, campaign string, result *PerfResult) error {
	req := connect.NewRequest(&service.GetPoolRequest{Campaign: campaign})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.GetPool(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to get pool: %w", err)
	}

	summary := resp.Msg.Summary
	if summary == nil {
		return fmt.Errorf("campaign not found")
	}
	actualIssued := int64(len(resp.Msg.AssignedCodes))
	expectedIssued := result.SuccessCount

	fmt.Printf("캠페인             : %s\n", campaign)
	fmt.Printf("전체 쿠폰 수       : %d\n", summary.Total)
	fmt.Printf("발급된 쿠폰 (DB)   : %d\n", actualIssued)
	fmt.Printf("발급된 쿠폰 (테스트): %d\n", expectedIssued)
	fmt.Printf("남은 쿠폰 수       : %d\n", summary.Available)

	if result.Duplicate > 0 {
		return fmt.Errorf("중복 발급 %d건", result.Duplicate)
	}

	if actualIssued != expectedIssued {
		return fmt.Errorf("데이터 불일치: DB=%d, 테스트=%d, 차이=%d",
			actualIssued, expectedIssued, actualIssued-expectedIssued)
	}

	// Additional checks
	if actualIssued > summary.Total {
		return fmt.Errorf("over-issuance 발생: 발급=%d > 전체=%d", actualIssued, summary.Total)
	}

	if result.ExhaustedCount > 0 && summary.Available > 0 {
		return fmt.Errorf("쿠폰이 남았는데 소진 응답: 남은=%d", summary.Available)
	}

	return nil
}
