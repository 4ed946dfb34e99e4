package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"blink/internal/analytics"
	"blink/internal/config"
	"blink/internal/middleware"
	"blink/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gorillaws "github.com/gorilla/websocket"
)

type Dependencies struct {
	Users        UserStore
	Accounts     BankAccountStore
	Transactions TransactionStore
	Aggregator   AggregatorClient
	Registration RegistrationService
	Advances     AdvanceService
	Sync         SyncService
	Balances     BalanceService
	Hub          *websocket.Hub
	Limiter      middleware.Limiter
	Logger       *slog.Logger
}

type Handler struct {
	cfg          config.Config
	users        UserStore
	accounts     BankAccountStore
	transactions TransactionStore
	aggregator   AggregatorClient
	registration RegistrationService
	advances     AdvanceService
	sync         SyncService
	balances     BalanceService
	hub          *websocket.Hub
	upgrader     *gorillaws.Upgrader
	limiter      middleware.Limiter
	clientIP     func(*http.Request) string
	logger       *slog.Logger
	windowMode   analytics.WindowMode
	now          func() time.Time
	tasks        sync.WaitGroup
}

func New(cfg config.Config, deps Dependencies) *Handler {
	mode, err := analytics.ParseWindowMode(cfg.AnalyticsWindowMode)
	if err != nil {
		deps.Logger.Warn("unknown analytics window mode, using to_date", "mode", cfg.AnalyticsWindowMode)
		mode = analytics.ModeToDate
	}
	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		deps.Logger.Warn("ignoring trusted proxies", "error", err)
		proxies = nil
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewMemoryFixedWindow(cfg.RateLimitRequests, cfg.RateLimitWindow())
	}
	return &Handler{
		cfg:          cfg,
		users:        deps.Users,
		accounts:     deps.Accounts,
		transactions: deps.Transactions,
		aggregator:   deps.Aggregator,
		registration: deps.Registration,
		advances:     deps.Advances,
		sync:         deps.Sync,
		balances:     deps.Balances,
		hub:          deps.Hub,
		upgrader:     websocket.NewUpgrader(allowedOrigins(cfg.AllowedOrigins)),
		limiter:      limiter,
		clientIP:     middleware.ClientIP(proxies),
		logger:       deps.Logger,
		windowMode:   mode,
		now:          time.Now,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.RequestLogger(h.logger))
	router.Use(middleware.Recover(h.logger, h.cfg.IsProduction()))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Aggregator retries webhooks on its own schedule; keep them out of the limiter.
	router.Post("/api/plaid/webhook", h.PlaidWebhook)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(h.limiter, h.cfg.RateLimitRequests, h.clientIP, h.logger))
		requireAuth := middleware.Auth(h.cfg.JWTSecret)

		r.Get("/", h.Health)
		r.Get("/api/health", h.Health)
		r.Get("/ws/balances", h.WSBalances)

		r.Route("/api/users", func(r chi.Router) {
			r.Post("/register-initial", h.RegisterInitial)
			r.Post("/verify-otp", h.VerifyOTP)
			r.Post("/resend-otp", h.ResendOTP)
			r.Post("/register-complete", h.RegisterComplete)
			r.Post("/login", h.Login)
			r.With(requireAuth).Get("/profile", h.Profile)
		})

		r.Route("/api/plaid", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/create_link_token", h.CreateLinkToken)
			r.Post("/exchange_public_token", h.ExchangePublicToken)
			r.Post("/sync", h.SyncTransactions)
			r.Post("/sync_balances", h.SyncBalances)
			r.Get("/accounts", h.ListAccounts)
			r.With(requireSameUser).Get("/spending-analysis/{userId}", h.SpendingAnalysis)
			r.With(requireSameUser).Get("/recurring-analysis/{userId}", h.RecurringAnalysis)
			r.With(requireSameUser).Get("/account-summary/{userId}", h.AccountSummary)
			r.With(requireSameUser).Get("/financial-summary/{userId}", h.FinancialSummary)
			r.With(requireSameUser).Get("/recent-transactions/{userId}", h.RecentTransactions)
		})

		r.Route("/api/blink-advances", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", h.CreateAdvance)
			r.Get("/", h.ListAdvances)
			r.Get("/{id}", h.GetAdvance)
			r.Patch("/{id}/status", h.UpdateAdvanceStatus)
		})

		r.With(requireAuth).Get("/api/cash-flow/analysis", h.CashFlowAnalysis)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})
	return router
}

// Wait blocks until background work started by handlers (webhook syncs,
// post-link syncs) has finished.
func (h *Handler) Wait() {
	h.tasks.Wait()
}

func (h *Handler) runInBackground(fn func()) {
	h.tasks.Add(1)
	go func() {
		defer h.tasks.Done()
		fn()
	}()
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   h.now().UTC(),
	})
}

// requireSameUser rejects {userId} paths that name someone other than the caller.
func requireSameUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if chi.URLParam(r, "userId") != userID {
			respondError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
