// upsbridge bridges a USB-attached HID UPS to HTTP and SNMP consumers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"upsbridge/internal/config"
	"upsbridge/internal/snmp"
	"upsbridge/internal/ups"
	"upsbridge/internal/usbhost"
)

// Configuration flags. File and environment values apply first, flags win.
var (
	configPath  = flag.String("config", config.DefaultPath, "configuration file path")
	httpAddr    = flag.String("http", "", "HTTP listen address (overrides config)")
	trapDest    = flag.String("trap", "", "SNMP trap destination host[:port] (overrides config)")
	community   = flag.String("community", "", "SNMP community (overrides config)")
	pollMS      = flag.Int("poll", 0, "UPS connection poll interval in ms (overrides config)")
	usbVID      = flag.Uint("usb-vid", 0, "USB vendor ID to match (0 = any HID power device)")
	usbPID      = flag.Uint("usb-pid", 0, "USB product ID to match (0 = any)")
	noReportIDs = flag.Bool("no-report-ids", false, "device sends a single unnumbered report")
	setPassword = flag.String("set-password", "", "store admin credentials as user:password and exit")
)

// Server carries the shared state behind the HTTP handlers.
type Server struct {
	cfg       *config.Config
	status    *ups.Status
	startTime time.Time
}

// HealthResponse is the /api/v1/health payload.
type HealthResponse struct {
	Status        string  `json:"status"`
	UPSConnected  bool    `json:"ups_connected"`
	Uptime        string  `json:"uptime"`
	HostUptime    string  `json:"host_uptime"`
	MemoryUsedPct float64 `json:"memory_used_pct"`
	Goroutines    int     `json:"goroutines"`
}

// DeviceResponse is the /api/v1/device payload.
type DeviceResponse struct {
	Connected    bool   `json:"connected"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Serial       string `json:"serial"`
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	applyFlagOverrides(cfg)

	if *setPassword != "" {
		user, pass, ok := strings.Cut(*setPassword, ":")
		if !ok || user == "" || pass == "" {
			log.Fatalf("-set-password expects user:password")
		}
		if err := cfg.SetPassword(user, pass); err != nil {
			log.Fatalf("set password: %v", err)
		}
		log.Printf("credentials stored for %s", user)
		return
	}

	settings := cfg.Snapshot()
	log.Printf("upsbridge starting, device name %q", settings.DeviceName)

	var opts []ups.Option
	if *noReportIDs {
		opts = append(opts, ups.WithoutReportIDs())
	}
	device := ups.NewDevice(opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := usbhost.NewMonitor(device.Bus(), settings.USBVendorID, settings.USBProductID)
	go monitor.Run(ctx)

	var sender snmp.TrapSender
	if settings.TrapDestination != "" {
		s, err := snmp.NewSender(settings.TrapDestination, settings.SNMPCommunity, settings.DeviceName, device.Status())
		if err != nil {
			log.Printf("snmp sender disabled: %v", err)
		} else {
			sender = s
			defer s.Close()
		}
	}
	snmpService := snmp.NewService(device.Status(), sender, cfg.PollInterval())
	go snmpService.Run(ctx)

	srv := &Server{cfg: cfg, status: device.Status(), startTime: time.Now()}
	runAPIServer(srv, cancel)
}

func applyFlagOverrides(cfg *config.Config) {
	var s config.Settings
	s.HTTPAddr = *httpAddr
	s.TrapDestination = *trapDest
	s.SNMPCommunity = *community
	s.PollIntervalMS = *pollMS
	s.USBVendorID = uint16(*usbVID)
	s.USBProductID = uint16(*usbPID)
	cfg.Override(s)
}

func runAPIServer(s *Server, cancel context.CancelFunc) {
	settings := s.cfg.Snapshot()

	httpSrv := &http.Server{
		Addr:    settings.HTTPAddr,
		Handler: s.router(),
	}

	go func() {
		log.Printf("HTTP server listening on %s", settings.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/status", s.handleStatus)

	api := router.Group("/api/v1")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/device", s.handleDevice)

		cfgGroup := api.Group("/config", s.basicAuth())
		cfgGroup.GET("", s.handleGetConfig)
		cfgGroup.POST("", s.handleSetConfig)
	}
	return router
}

// basicAuth guards the config endpoints. With no credentials configured
// every request passes.
func (s *Server) basicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.AuthRequired() {
			return
		}
		user, pass, ok := c.Request.BasicAuth()
		if !ok || !s.cfg.CheckCredentials(user, pass) {
			c.Header("WWW-Authenticate", `Basic realm="UPS monitoring"`)
			c.AbortWithStatus(http.StatusUnauthorized)
		}
	}
}

// handleStatus serves the UPS status JSON projection.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Snapshot())
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "offline"
	if s.status.Connected() {
		status = "online"
	}

	resp := HealthResponse{
		Status:       status,
		UPSConnected: s.status.Connected(),
		Uptime:       time.Since(s.startTime).String(),
		Goroutines:   runtime.NumGoroutine(),
	}
	if up, err := host.Uptime(); err == nil {
		resp.HostUptime = (time.Duration(up) * time.Second).String()
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryUsedPct = vm.UsedPercent
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDevice(c *gin.Context) {
	c.JSON(http.StatusOK, DeviceResponse{
		Connected:    s.status.Connected(),
		Manufacturer: s.status.Manufacturer(),
		Model:        s.status.Model(),
		Serial:       s.status.Serial(),
	})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	settings := s.cfg.Snapshot()
	settings.PasswordHash = ""
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleSetConfig(c *gin.Context) {
	var settings config.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.cfg.Update(settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("persist config: %v", err)})
		return
	}
	updated := s.cfg.Snapshot()
	updated.PasswordHash = ""
	c.JSON(http.StatusOK, updated)
}
