package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	gatekeep "github.com/remindlabs/gatekeep"
)

func main() {
	var (
		identifiers = flag.Int("identifiers", 10000, "number of distinct client identifiers")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (evaluate + lockout)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		limiterName = flag.String("limiter", gatekeep.LimiterAPI, "limiter instance to exercise")
	)
	flag.Parse()

	if *identifiers <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "identifiers, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := gatekeep.DefaultConfig()
	cfg.Audit.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = true

	gate, err := gatekeep.New().
		WithConfig(cfg).
		WithRedis(client).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gate build failed: %v\n", err)
		os.Exit(1)
	}
	defer gate.Close()

	if !gate.RemoteBacked() {
		fmt.Fprintln(os.Stderr, "redis probe failed, refusing to loadtest local stores")
		os.Exit(1)
	}

	limiter, err := gate.Limiter(*limiterName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unknown limiter %q\n", *limiterName)
		os.Exit(2)
	}

	evaluateStats := runEvaluatePhase(ctx, limiter, *identifiers, *ops, *concurrency)
	lockoutStats := runLockoutPhase(ctx, gate, *identifiers, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("evaluate", evaluateStats)
	printStats("lockout", lockoutStats)

	snap := gate.MetricsSnapshot()
	fmt.Printf("allowed=%d rejected=%d fail_open=%d\n",
		snap.Counters[gatekeep.MetricRateLimitAllowed],
		snap.Counters[gatekeep.MetricRateLimitRejected],
		snap.Counters[gatekeep.MetricRateLimitFailOpen],
	)
}

func runEvaluatePhase(ctx context.Context, limiter *gatekeep.Limiter, identifiers, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		rejected  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				id := fmt.Sprintf("ip_10.%d.%d.%d", worker%256, r.Intn(256), r.Intn(identifiers)%256)
				t0 := time.Now()
				state := limiter.Evaluate(ctx, id)
				d := time.Since(t0)
				if !state.Allowed {
					atomic.AddInt64(&rejected, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, rejected)
}

func runLockoutPhase(ctx context.Context, gate *gatekeep.Gate, identifiers, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		locked    int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				email := fmt.Sprintf("user%d@loadtest.example", r.Intn(identifiers))
				ip := fmt.Sprintf("10.0.%d.%d", r.Intn(256), r.Intn(256))
				// Roughly one in four attempts fails, like a real login mix.
				success := r.Intn(4) != 0
				t0 := time.Now()
				gate.RecordLoginAttempt(ctx, email, ip, success)
				st := gate.CheckLoginLocked(ctx, email, ip)
				d := time.Since(t0)
				if st.Locked {
					atomic.AddInt64(&locked, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, locked)
}

type phaseStats struct {
	total   time.Duration
	ops     int
	denied  int64
	p50     time.Duration
	p95     time.Duration
	p99     time.Duration
	opsPerS float64
}

func computeStats(total time.Duration, samples []time.Duration, denied int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:   total,
		ops:     len(samples),
		denied:  denied,
		p50:     percentile(samples, 50),
		p95:     percentile(samples, 95),
		p99:     percentile(samples, 99),
		opsPerS: float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d denied=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.denied,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
