// Command poscli exercises the POS core from the terminal: it owns the
// wiring of config, logging, tracing, metrics, session, transport, and the
// resource clients, and maps subcommands onto the payment and receipt
// workflows.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/dukapos/pos-core-go/internal/api"
	"github.com/dukapos/pos-core-go/internal/config"
	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/infra/cache"
	"github.com/dukapos/pos-core-go/internal/infra/observability"
	"github.com/dukapos/pos-core-go/internal/infra/resilience"
	"github.com/dukapos/pos-core-go/internal/money"
	"github.com/dukapos/pos-core-go/internal/pay"
	"github.com/dukapos/pos-core-go/internal/receipt"
	"github.com/dukapos/pos-core-go/internal/service"
	"github.com/dukapos/pos-core-go/internal/session"
	"github.com/dukapos/pos-core-go/internal/transport"

	"go.uber.org/zap"
)

const usage = `usage: poscli <command> [flags]

commands:
  login     -u <username> -p <password>
  register  -u <username> -p <password> -email <email>
  pay       -amount <decimal> [-currency USD] [-desc s] [-email s]
  link      -amount <decimal> -phone <number> [-currency USD] [-name s] [-desc s]
  resend    -id <link-id>
  refund    -id <tx-id> [-amount <decimal>] [-reason s]
  receipt   -tx <tx-id> -method sms|email|print [-to <recipient>]
  tx        -id <tx-id>
  list      [-page 1] [-per 20]
  health
  stats
  logout
`

// app bundles everything the subcommands need.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	metrics      *observability.Metrics
	sess         *session.Store
	auth         *api.AuthClient
	txs          *api.TransactionsClient
	links        *api.PaymentLinksClient
	receipts     *api.ReceiptsClient
	health       *api.HealthClient
	orchestrator *pay.Orchestrator
	dispatcher   *receipt.Dispatcher
	dashboard    *service.Dashboard
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	// --- Tracing (opt-in for a CLI) ---
	if cfg.TracingOn {
		shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "pos-core")
		if err != nil {
			logger.Fatal("failed to init tracer", zap.Error(err))
		}
		defer shutdown(context.Background())
	}

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Session ---
	sess, err := session.NewStore(cfg.TokenFile, logger)
	if err != nil {
		logger.Fatal("failed to open session store", zap.Error(err))
	}
	sess.OnUnauthorized(func() {
		fmt.Fprintln(os.Stderr, "session expired: run `poscli login` again")
	})

	// --- Transport ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("pos-backend")
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	tp := transport.NewClient(httpClient, cfg.APIBaseURL, sess, cb, resilienceCfg, metrics, logger)

	// --- Clients ---
	healthCache := cache.New[domain.HealthStatus](cfg.CacheTTL)
	defer healthCache.Close()

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		sess:     sess,
		auth:     api.NewAuthClient(tp, sess, logger),
		txs:      api.NewTransactionsClient(tp),
		links:    api.NewPaymentLinksClient(tp),
		receipts: api.NewReceiptsClient(tp),
		health:   api.NewHealthClient(tp, healthCache, metrics),
	}
	a.orchestrator = pay.NewOrchestrator(a.txs, a.links, cfg.DefaultCurrency, metrics, logger)
	a.dispatcher = receipt.NewDispatcher(a.receipts, cfg.ReceiptDisplayWindow, metrics, logger)
	a.dashboard = service.NewDashboard(a.txs, a.health, cfg.MaxConcurrency, metrics, logger)

	ctx := context.Background()
	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		var unauth *domain.ErrUnauthorized
		if errors.As(err, &unauth) {
			fmt.Fprintln(os.Stderr, "error: unauthorized, log in again:", err.Error())
		} else {
			fmt.Fprintln(os.Stderr, "error:", err.Error())
		}
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		user := fs.String("u", "", "username")
		pass := fs.String("p", "", "password")
		fs.Parse(args)
		tok, err := a.auth.Login(ctx, *user, *pass)
		if err != nil {
			return err
		}
		fmt.Printf("logged in (%s token stored)\n", tok.TokenType)
		return nil

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		user := fs.String("u", "", "username")
		pass := fs.String("p", "", "password")
		email := fs.String("email", "", "email")
		fs.Parse(args)
		u, err := a.auth.Register(ctx, &domain.RegisterRequest{
			Username: *user, Password: *pass, Email: *email,
		})
		if err != nil {
			return err
		}
		return printJSON(u)

	case "pay":
		fs := flag.NewFlagSet("pay", flag.ExitOnError)
		amount := fs.String("amount", "", "decimal amount, e.g. 12.50")
		currency := fs.String("currency", "", "ISO 4217 code")
		desc := fs.String("desc", "", "description")
		email := fs.String("email", "", "customer email for digital receipt")
		fs.Parse(args)
		res, err := a.orchestrator.Submit(ctx, pay.Input{
			Mode:          pay.ModeTerminal,
			Amount:        *amount,
			Currency:      *currency,
			Description:   *desc,
			CustomerEmail: *email,
		})
		if err != nil {
			return err
		}
		return printJSON(res.Transaction)

	case "link":
		fs := flag.NewFlagSet("link", flag.ExitOnError)
		amount := fs.String("amount", "", "decimal amount, e.g. 12.50")
		currency := fs.String("currency", "", "ISO 4217 code")
		phone := fs.String("phone", "", "customer phone for the SMS")
		name := fs.String("name", "", "customer name")
		desc := fs.String("desc", "", "description")
		fs.Parse(args)
		res, err := a.orchestrator.Submit(ctx, pay.Input{
			Mode:          pay.ModeLink,
			Amount:        *amount,
			Currency:      *currency,
			CustomerPhone: *phone,
			CustomerName:  *name,
			Description:   *desc,
		})
		if err != nil {
			return err
		}
		return printJSON(res.Link)

	case "resend":
		fs := flag.NewFlagSet("resend", flag.ExitOnError)
		id := fs.Int64("id", 0, "payment link id")
		fs.Parse(args)
		res, err := a.links.ResendSMS(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(res)

	case "refund":
		fs := flag.NewFlagSet("refund", flag.ExitOnError)
		id := fs.Int64("id", 0, "transaction id")
		amount := fs.String("amount", "", "partial refund amount; empty for full")
		reason := fs.String("reason", "", "refund reason")
		fs.Parse(args)
		var minor int64
		if *amount != "" {
			var err error
			minor, err = money.ToMinorUnits(*amount)
			if err != nil {
				return err
			}
		}
		tx, err := a.txs.Refund(ctx, *id, minor, *reason)
		if err != nil {
			return err
		}
		return printJSON(tx)

	case "receipt":
		fs := flag.NewFlagSet("receipt", flag.ExitOnError)
		txID := fs.Int64("tx", 0, "transaction id")
		method := fs.String("method", "sms", "sms|email|print")
		to := fs.String("to", "", "override recipient")
		fs.Parse(args)
		m, err := domain.ParseDeliveryMethod(*method)
		if err != nil {
			return err
		}
		resp, err := a.dispatcher.Dispatch(ctx, *txID, m, *to)
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "tx":
		fs := flag.NewFlagSet("tx", flag.ExitOnError)
		id := fs.Int64("id", 0, "transaction id")
		fs.Parse(args)
		tx, err := a.txs.Get(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(tx)

	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		page := fs.Int("page", 1, "page number")
		per := fs.Int("per", 20, "items per page")
		fs.Parse(args)
		snap, err := a.dashboard.Refresh(ctx, *page, *per)
		if err != nil {
			return err
		}
		return printJSON(snap)

	case "health":
		hs, err := a.health.Check(ctx)
		if err != nil {
			return err
		}
		return printJSON(hs)

	case "stats":
		return printJSON(a.metrics.Snapshot())

	case "logout":
		if err := a.auth.Logout(); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
