package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nhle/ews-client/internal/config"
	"github.com/nhle/ews-client/internal/credential"
	"github.com/nhle/ews-client/internal/ewserr"
	"github.com/nhle/ews-client/internal/journal"
	"github.com/nhle/ews-client/internal/metrics"
	"github.com/nhle/ews-client/internal/request"
	"github.com/nhle/ews-client/internal/soap"
	"github.com/nhle/ews-client/internal/trace"
	"github.com/nhle/ews-client/internal/transport"
)

// Flags for exec
var (
	flagAsync        bool
	flagTrace        []string
	flagThrowOnError bool
	flagShowMetrics  bool
	flagNoPrompt     bool
)

var execCmd = &cobra.Command{
	Use:   "exec <operation> <body-file>",
	Short: "Send an operation whose body element is read from a file",
	Long: `Send one operation. The file holds the operation element only, for
example <m:GetFolder>...</m:GetFolder>; the SOAP envelope is added.
The "m" and "t" namespace prefixes are predeclared.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExec(cmd.Context(), args[0], args[1])
	},
}

func init() {
	execCmd.Flags().BoolVar(&flagAsync, "async", false, "Send on the async pool and wait for the callback")
	execCmd.Flags().StringSliceVar(&flagTrace, "trace", nil, "Trace parts: request_headers,request,response_headers,response,all")
	execCmd.Flags().BoolVar(&flagThrowOnError, "throw", false, "Fail when any response message reports an error")
	execCmd.Flags().BoolVar(&flagShowMetrics, "metrics", false, "Print request metrics after the call")
	execCmd.Flags().BoolVar(&flagNoPrompt, "no-prompt", false, "Never prompt for a password")
}

func runExec(ctx context.Context, operation, bodyFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(flagTrace) > 0 {
		cfg.Trace = flagTrace
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", flagConfig, err)
	}

	body, err := os.ReadFile(bodyFile)
	if err != nil {
		return fmt.Errorf("reading body file: %w", err)
	}

	log := newLogger()
	reg := prometheus.NewRegistry()
	executor, cleanup, err := newExecutor(cfg, log, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	op := &soap.RawOperation{
		Operation:     operation,
		Body:          body,
		ServerVersion: cfg.ServerVersion,
		ThrowOnError:  flagThrowOnError,
	}

	started := time.Now()
	var result *soap.Result
	if flagAsync {
		result, err = execAsync(ctx, executor, op)
	} else {
		result, err = request.Execute(ctx, executor, op)
	}
	elapsed := time.Since(started)

	printOutcome(operation, result, err, elapsed)
	if flagShowMetrics {
		printMetrics(reg)
	}
	if err != nil {
		return errors.New("request failed")
	}
	return nil
}

func execAsync(ctx context.Context, executor *request.Executor, op *soap.RawOperation) (*soap.Result, error) {
	type outcome struct {
		result *soap.Result
		err    error
	}
	done := make(chan outcome, 1)

	_, err := request.BeginExecute(ctx, executor, op, func(h *request.AsyncHandle[*soap.Result]) {
		result, err := request.EndExecute(h)
		done <- outcome{result, err}
	}, nil)
	if err != nil {
		return nil, err
	}

	got := <-done
	return got.result, got.err
}

// newExecutor wires the sender, tracer, journal and metrics described by cfg.
func newExecutor(cfg *config.ClientConfig, log logr.Logger, reg prometheus.Registerer) (*request.Executor, func(), error) {
	password, err := resolvePassword(cfg.Username)
	if err != nil {
		return nil, nil, err
	}

	sender, err := transport.NewHTTPSender(transport.HTTPOptions{
		Timeout:            cfg.Timeout(),
		HTTP2:              cfg.HTTP2,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Username:           cfg.Username,
		Password:           password,
		UserAgent:          cfg.UserAgent,
	})
	if err != nil {
		return nil, nil, err
	}

	flags, err := cfg.TraceFlags()
	if err != nil {
		return nil, nil, err
	}

	m, err := metrics.New(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("registering metrics: %w", err)
	}

	opts := []request.Option{
		request.WithTracer(trace.NewTracer(flags, trace.NewLogrListener(log.WithName("trace")))),
		request.WithMetrics(m),
	}

	closers := []func(){}
	var recorder trace.Recorder
	if cfg.JournalPath != "" {
		j, err := journal.NewSQLiteJournal(cfg.JournalPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening journal: %w", err)
		}
		closers = append(closers, func() { j.Close() })
		recorder = j
	}
	if failed := failedRequestLogger(log, recorder, flagVerbosity); failed != nil {
		opts = append(opts, request.WithFailedRequestLogger(failed))
	}

	executor, err := request.NewExecutor(cfg.URL, sender, opts...)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, nil, err
	}

	cleanup := func() {
		executor.Close()
		for _, c := range closers {
			c()
		}
	}
	if err := m.RegisterPool(executor.Pool()); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("registering pool metrics: %w", err)
	}
	return executor, cleanup, nil
}

// failedRequestLogger returns nil unless failures are journaled or logged
// at verbosity 1 or above. Installing one forces buffered response reads.
func failedRequestLogger(log logr.Logger, recorder trace.Recorder, verbosity int) *trace.FailedRequestLogger {
	if recorder == nil && verbosity < 1 {
		return nil
	}
	return trace.NewFailedRequestLogger(log.WithName("failed-request"), recorder)
}

// resolvePassword looks the password up in the keyring, prompting for it
// when none is stored.
func resolvePassword(username string) (string, error) {
	if username == "" {
		return "", nil
	}

	store, err := credential.Open()
	if err != nil {
		return "", err
	}
	password, err := store.Password(username)
	if err == nil {
		return password, nil
	}
	if !errors.Is(err, credential.ErrNotFound) || flagNoPrompt {
		return "", err
	}
	return promptPassword(username)
}

func printOutcome(operation string, result *soap.Result, err error, elapsed time.Duration) {
	var lines []string
	lines = append(lines, headerStyle.Render(operation))
	lines = append(lines, field("Elapsed", elapsed.Round(time.Millisecond).String()))

	if result != nil {
		for i, msg := range result.Messages {
			lines = append(lines, field(fmt.Sprintf("Message %d", i+1),
				classStyle(string(msg.Class)).Render(string(msg.Class))+" "+string(msg.ResponseCode)))
			if msg.MessageText != "" {
				lines = append(lines, field("", msg.MessageText))
			}
		}
	}

	if err != nil {
		classified := ewserr.Translate(err)
		kind, _ := ewserr.KindOf(classified)
		lines = append(lines, field("Outcome", classStyle(kind.String()).Render(kind.String())))
		if kind.IsPermanent() {
			lines = append(lines, field("", subtleStyle.Render("permanent: retrying won't help")))
		}
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) && statusErr.IsUnauthorized() {
			lines = append(lines, field("", subtleStyle.Render("credentials rejected: run ewsctl login")))
		}
		lines = append(lines, field("Error", classified.Error()))
	} else {
		lines = append(lines, field("Outcome", classStyle("success").Render("success")))
	}

	fmt.Println(panelStyle.Render(strings.Join(lines, "\n")))
}

func printMetrics(g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("gathering metrics:"), err)
		return
	}

	var lines []string
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			var labels []string
			for _, lp := range metric.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)

			var value string
			switch {
			case metric.GetCounter() != nil:
				value = fmt.Sprintf("%g", metric.GetCounter().GetValue())
			case metric.GetGauge() != nil:
				value = fmt.Sprintf("%g", metric.GetGauge().GetValue())
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				value = fmt.Sprintf("count=%d sum=%.3fs", h.GetSampleCount(), h.GetSampleSum())
			default:
				continue
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			lines = append(lines, name+" "+value)
		}
	}
	fmt.Println(subtleStyle.Render(strings.Join(lines, "\n")))
}
