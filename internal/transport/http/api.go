package httptransport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/domain/discovery"
	"vitarp-go/internal/domain/eventbus"
	"vitarp-go/internal/domain/profile"
	regengine "vitarp-go/internal/domain/registration/engine"
	"vitarp-go/internal/domain/registration/store"
	"vitarp-go/internal/domain/session"
	"vitarp-go/internal/domain/wake"
	"vitarp-go/internal/platform/config"
	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/logging"
)

// Service exposes the client core's operations to the UI shell over HTTP.
type Service struct {
	cfg       *config.Config
	logger    *logging.Logger
	bus       *eventbus.Bus
	cache     *console.Cache
	creds     *store.Store
	profiles  *profile.Store
	discovery *discovery.Service
	pairing   *regengine.Engine
	sessions  *session.Engine
	waker     *wake.Engine
}

// NewService bundles the domain engines behind the control API.
func NewService(cfg *config.Config, logger *logging.Logger, bus *eventbus.Bus,
	cache *console.Cache, creds *store.Store, profiles *profile.Store,
	disc *discovery.Service, pairing *regengine.Engine,
	sessions *session.Engine, waker *wake.Engine) *Service {
	return &Service{
		cfg:       cfg,
		logger:    logger,
		bus:       bus,
		cache:     cache,
		creds:     creds,
		profiles:  profiles,
		discovery: disc,
		pairing:   pairing,
		sessions:  sessions,
		waker:     waker,
	}
}

// RegisterRoutes attaches every endpoint. Auth lives on the secured group;
// the token exchange itself stays open.
func (s *Service) RegisterRoutes(r *Router) {
	r.API.POST("/auth/token", s.handleIssueToken)
	r.API.GET("/health", s.handleHealth)

	sec := r.Secured
	sec.GET("/consoles", s.handleConsoles)
	sec.POST("/consoles/reload", s.handleConsolesReload)

	sec.POST("/discovery/start", s.handleDiscoveryStart)
	sec.POST("/discovery/stop", s.handleDiscoveryStop)
	sec.GET("/discovery/results", s.handleDiscoveryResults)

	sec.POST("/registration/start", s.handleRegistrationStart)
	sec.POST("/registration/pin", s.handleRegistrationPIN)
	sec.POST("/registration/cancel", s.handleRegistrationCancel)
	sec.GET("/registration/state", s.handleRegistrationState)

	sec.POST("/session/start", s.handleSessionStart)
	sec.POST("/session/stop", s.handleSessionStop)
	sec.POST("/session/acknowledge", s.handleSessionAcknowledge)
	sec.GET("/session/state", s.handleSessionState)
	sec.GET("/session/stats", s.handleSessionStats)

	sec.POST("/wake", s.handleWake)
	sec.GET("/wake/progress", s.handleWakeProgress)

	sec.GET("/profile", s.handleProfileGet)
	sec.POST("/profile/identity", s.handleProfileIdentity)
	sec.POST("/profile/display-name", s.handleProfileDisplayName)
	sec.POST("/profile/settings", s.handleProfileSettings)
	sec.POST("/profile/backup", s.handleProfileBackup)
	sec.POST("/profile/restore", s.handleProfileRestore)
	sec.GET("/profile/system-info", s.handleSystemInfo)

	sec.GET("/store/stats", s.handleStoreStats)
}

func (s *Service) handleHealth(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, gin.H{"time": time.Now().Unix()}, "")
}

func (s *Service) handleIssueToken(c *gin.Context) {
	var req struct {
		DeviceToken string `json:"device_token" binding:"required"`
		Client      string `json:"client"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "device_token is required", nil)
		return
	}
	if req.DeviceToken != s.cfg.Server.Token {
		RespondError(c, http.StatusUnauthorized, "unknown device token", nil)
		return
	}
	token, err := IssueToken(s.cfg.Server, req.Client)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "token signing failed", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"token": token}, "")
}

func (s *Service) handleConsoles(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, s.cache.Snapshot(), "")
}

func (s *Service) handleConsolesReload(c *gin.Context) {
	if err := s.cache.Reload(); err != nil {
		RespondWithError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, s.cache.Snapshot(), "console cache reloaded")
}

func (s *Service) handleDiscoveryStart(c *gin.Context) {
	if id := s.profiles.Identity(); id.IsSet() {
		discovery.SetAccountIdentity(id.Base64())
	}
	if err := s.discovery.Start(c.Request.Context()); err != nil {
		RespondWithError(c, err)
		return
	}
	RespondSuccess(c, http.StatusAccepted, nil, "scan started")
}

func (s *Service) handleDiscoveryStop(c *gin.Context) {
	s.discovery.Stop()
	RespondSuccess(c, http.StatusOK, s.discovery.Results(), "scan stopped")
}

func (s *Service) handleDiscoveryResults(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, gin.H{
		"scanning": s.discovery.IsScanning(),
		"progress": s.discovery.Progress(),
		"consoles": s.discovery.Results(),
	}, "")
}

func (s *Service) handleRegistrationStart(c *gin.Context) {
	var req struct {
		IP         string `json:"ip" binding:"required"`
		HostID     string `json:"host_id"`
		Nickname   string `json:"nickname"`
		Generation string `json:"generation"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "ip is required", nil)
		return
	}

	identity := s.profiles.Identity()
	if !identity.IsSet() {
		RespondWithError(c, errors.New(errors.KindNotInitialized, "api.registration",
			"no account identity configured; sign in first"))
		return
	}

	generation := console.GenPS5
	if req.Generation == string(console.GenPS4) {
		generation = console.GenPS4
	}
	err := s.pairing.Start(regengine.Target{
		IP:         req.IP,
		HostID:     req.HostID,
		Nickname:   req.Nickname,
		Generation: generation,
		AccountID:  identity.Base64(),
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondSuccess(c, http.StatusAccepted, gin.H{"state": s.pairing.State()}, "pairing started")
}

func (s *Service) handleRegistrationPIN(c *gin.Context) {
	var req struct {
		PIN string `json:"pin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "pin is required", nil)
		return
	}
	if _, err := regengine.ParsePIN(req.PIN); err != nil {
		RespondWithError(c, err)
		return
	}
	for i := 0; i < regengine.PINLength; i++ {
		if err := s.pairing.SetDigit(i, int(req.PIN[i]-'0')); err != nil {
			RespondWithError(c, err)
			return
		}
	}
	if err := s.pairing.SubmitPIN(c.Request.Context()); err != nil {
		RespondWithError(c, err)
		return
	}
	RespondSuccess(c, http.StatusAccepted, gin.H{"state": s.pairing.State()}, "pairing in progress")
}

func (s *Service) handleRegistrationCancel(c *gin.Context) {
	s.pairing.Cancel()
	RespondSuccess(c, http.StatusOK, gin.H{"state": s.pairing.State()}, "pairing cancelled")
}

func (s *Service) handleRegistrationState(c *gin.Context) {
	data := gin.H{
		"state":    s.pairing.State(),
		"pin":      s.pairing.CurrentPIN(),
		"attempts": s.pairing.Attempts(),
	}
	if err := s.pairing.LastError(); err != nil {
		data["error"] = err.Error()
		data["hint"] = errors.UserHintFor(err)
	}
	RespondSuccess(c, http.StatusOK, data, "")
}

func (s *Service) handleSessionStart(c *gin.Context) {
	var req struct {
		IP string `json:"ip" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "ip is required", nil)
		return
	}
	if err := s.sessions.Start(c.Request.Context(), req.IP); err != nil {
		RespondWithError(c, err)
		return
	}
	RespondSuccess(c, http.StatusAccepted, gin.H{"state": s.sessions.State()}, "session starting")
}

func (s *Service) handleSessionStop(c *gin.Context) {
	s.sessions.Stop()
	RespondSuccess(c, http.StatusOK, gin.H{"state": s.sessions.State()}, "")
}

func (s *Service) handleSessionAcknowledge(c *gin.Context) {
	s.sessions.Acknowledge()
	RespondSuccess(c, http.StatusOK, gin.H{"state": s.sessions.State()}, "")
}

func (s *Service) handleSessionState(c *gin.Context) {
	data := gin.H{"state": s.sessions.State()}
	if err := s.sessions.LastError(); err != nil {
		data["error"] = err.Error()
		data["kind"] = string(errors.KindOf(err))
		data["hint"] = errors.UserHintFor(err)
	}
	RespondSuccess(c, http.StatusOK, data, "")
}

func (s *Service) handleSessionStats(c *gin.Context) {
	stats := s.sessions.Stats()
	RespondSuccess(c, http.StatusOK, gin.H{
		"fps":        stats.FPS,
		"latency_ms": stats.LatencyMS,
		"quality":    stats.Quality,
		"frames":     stats.Frames,
	}, "")
}

func (s *Service) handleWake(c *gin.Context) {
	var req struct {
		IP string `json:"ip" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "ip is required", nil)
		return
	}
	if !s.cfg.Discovery.EnableWakeOnLAN {
		RespondWithError(c, errors.New(errors.KindInvalidParam, "http.wake",
			"wake-on-lan is disabled in configuration"))
		return
	}
	if err := s.waker.Wake(c.Request.Context(), req.IP); err != nil {
		RespondWithError(c, err)
		return
	}
	RespondSuccess(c, http.StatusAccepted, nil, "wake signal sent")
}

func (s *Service) handleWakeProgress(c *gin.Context) {
	data := gin.H{
		"waking":   s.waker.IsWaking(),
		"progress": s.waker.Progress(),
		"message":  s.waker.StatusMessage(),
	}
	if final := s.waker.FinalState(); final != "" {
		data["final_state"] = string(final)
	}
	if err := s.waker.LastError(); err != nil {
		data["error"] = err.Error()
		data["hint"] = errors.UserHintFor(err)
	}
	RespondSuccess(c, http.StatusOK, data, "")
}

func (s *Service) handleProfileGet(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, s.profiles.Get(), "")
}

func (s *Service) handleProfileIdentity(c *gin.Context) {
	var req struct {
		PSNIDBase64 string `json:"psn_id_base64" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "psn_id_base64 is required", nil)
		return
	}
	if err := s.profiles.SetIdentity(req.PSNIDBase64); err != nil {
		RespondWithError(c, err)
		return
	}
	discovery.SetAccountIdentity(req.PSNIDBase64)
	RespondSuccess(c, http.StatusOK, nil, "identity updated")
}

func (s *Service) handleProfileDisplayName(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "display_name is required", nil)
		return
	}
	if err := s.profiles.SetDisplayName(req.DisplayName); err != nil {
		RespondWithError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "display name updated")
}

func (s *Service) handleProfileSettings(c *gin.Context) {
	var req struct {
		QualityPreset      *string `json:"quality_preset"`
		HardwareDecode     *bool   `json:"hardware_decode"`
		PerformanceOverlay *bool   `json:"performance_overlay"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "malformed settings payload", nil)
		return
	}
	if req.QualityPreset != nil {
		if err := s.profiles.SetQualityPreset(*req.QualityPreset); err != nil {
			RespondWithError(c, err)
			return
		}
	}
	if req.HardwareDecode != nil {
		if err := s.profiles.SetHardwareDecode(*req.HardwareDecode); err != nil {
			RespondWithError(c, err)
			return
		}
	}
	if req.PerformanceOverlay != nil {
		if err := s.profiles.SetPerformanceOverlay(*req.PerformanceOverlay); err != nil {
			RespondWithError(c, err)
			return
		}
	}
	RespondSuccess(c, http.StatusOK, s.profiles.Get(), "settings updated")
}

func (s *Service) handleProfileBackup(c *gin.Context) {
	if err := s.profiles.Backup(); err != nil {
		RespondWithError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "profile backed up")
}

func (s *Service) handleProfileRestore(c *gin.Context) {
	if err := s.profiles.Restore(); err != nil {
		RespondWithError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, s.profiles.Get(), "profile restored from backup")
}

func (s *Service) handleSystemInfo(c *gin.Context) {
	if info, ok := s.profiles.CachedSystemInfo(); ok {
		RespondSuccess(c, http.StatusOK, info, "")
		return
	}
	info := profile.CollectSystemInfo()
	if err := s.profiles.UpdateSystemInfo(info); err != nil {
		s.logger.Debug("system info not cached", "error", err)
	}
	RespondSuccess(c, http.StatusOK, info, "")
}

func (s *Service) handleStoreStats(c *gin.Context) {
	stats := s.creds.Stats()
	RespondSuccess(c, http.StatusOK, gin.H{
		"requests":  stats.Requests,
		"hits":      stats.Hits,
		"misses":    stats.Misses,
		"entries":   stats.Entries,
		"evictions": stats.Evictions,
	}, "")
}
