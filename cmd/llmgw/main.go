// Command llmgw dispatches one chat-completion call through the gateway.
// Useful for smoke-testing routing, hedging and cache configuration without
// the surrounding profiling pipeline.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goccy/go-json"

	"github.com/seekwell/llmgw"
	"github.com/seekwell/llmgw/config"
	"github.com/seekwell/llmgw/gateway"
	"github.com/seekwell/llmgw/metrics"
	"github.com/seekwell/llmgw/provider"
	"github.com/seekwell/llmgw/utils"
)

func main() {
	logger := utils.Must(zap.NewProduction())
	defer logger.Sync()
	sugar := logger.Sugar()

	configPath := flag.String("config", "config.yaml", "path to config file")
	task := flag.String("task", "report_section", "task name selecting routing and policy")
	model := flag.String("model", "", "explicit route, provider:model or bare model")
	system := flag.String("system", "", "optional system message")
	expectJson := flag.Bool("json", false, "request best-effort JSON recovery")
	stream := flag.Bool("stream", false, "stream deltas to stdout as they arrive")
	useCache := flag.Bool("cache", false, "use the response cache")
	timeout := flag.Duration("timeout", 0, "per-attempt timeout, 0 uses the configured default")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	flag.Parse()

	cfg, err := config.Load(*configPath, sugar)
	if err != nil {
		sugar.Fatalw("Failed to load config", "error", err)
	}

	keyVariables := make(map[string]string, len(cfg.Providers))
	for name, providerConfig := range cfg.Providers {
		keyVariables[name] = providerConfig.ApiKeyEnv
	}

	m := metrics.New()
	gw, cleanup, err := gateway.FromConfig(cfg, &provider.EnvKeys{Variables: keyVariables}, m, sugar)
	if err != nil {
		sugar.Fatalw("Failed to build gateway", "error", err)
	}
	defer cleanup()

	if *metricsAddr != "" {
		go func() {
			sugar.Infow("Serving metrics", "address", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, m.Handler()); err != nil {
				sugar.Warnw("Metrics server stopped", "error", err)
			}
		}()
	}

	prompt := strings.Join(flag.Args(), " ")
	if prompt == "" {
		prompt = readStdin()
	}
	if prompt == "" {
		sugar.Fatalw("No prompt given; pass it as arguments or on stdin")
	}

	var messages []llmgw.Message
	if *system != "" {
		messages = append(messages, llmgw.Message{Role: "system", Content: *system})
	}
	messages = append(messages, llmgw.Message{Role: "user", Content: prompt})

	params := gateway.ChatParams{
		Task:       *task,
		Messages:   messages,
		Model:      *model,
		ExpectJson: *expectJson,
		Stream:     *stream,
		Cache:      *useCache,
		Timeout:    *timeout,
	}
	if *stream {
		params.OnDelta = func(delta string) { fmt.Print(delta) }
	}

	start := time.Now()
	result, err := gw.Chat(context.Background(), params)
	if err != nil {
		sugar.Fatalw("Call failed", "error_type", llmgw.Classify(err), "error", err)
	}

	if *stream {
		fmt.Println()
	} else if *expectJson && result.Json != nil {
		pretty := utils.Must(json.MarshalIndent(result.Json, "", "  "))
		fmt.Println(string(pretty))
	} else {
		fmt.Println(result.Text)
	}

	sugar.Infow("Call completed",
		"route", result.Route.Key(),
		"cached", result.Cached,
		"duration", time.Since(start),
		"tokens_in", result.TokensIn,
		"tokens_out", result.TokensOut)
}

func readStdin() string {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return ""
	}
	var builder strings.Builder
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		builder.WriteString(scanner.Text())
		builder.WriteString("\n")
	}
	return strings.TrimSpace(builder.String())
}
