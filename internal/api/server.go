package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/intersection.sim/internal/config"
	"github.com/banshee-data/intersection.sim/internal/detection"
	"github.com/banshee-data/intersection.sim/internal/engine"
	"github.com/banshee-data/intersection.sim/internal/httputil"
	"github.com/banshee-data/intersection.sim/internal/road"
	"github.com/banshee-data/intersection.sim/internal/signal"
	"github.com/banshee-data/intersection.sim/internal/units"
	"github.com/banshee-data/intersection.sim/internal/version"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Server exposes the simulation over HTTP. Every handler goes through the
// runner so requests never overlap a frame.
type Server struct {
	runner *engine.Runner
	units  string

	// OnReset, when set, is called after a reset with the engine lock held.
	OnReset func(*engine.Simulation)

	// AllowedOrigins enables CORS for browser dashboards when non-empty.
	AllowedOrigins []string
}

// NewServer returns a server reporting speeds in the given default units.
func NewServer(runner *engine.Runner, defaultUnits string) *Server {
	if !units.IsValid(defaultUnits) {
		defaultUnits = units.MPS
	}
	return &Server{runner: runner, units: defaultUnits}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Router builds the chi router for the API. Unknown paths and wrong methods
// answer with the JSON error body used by every other failure.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	if len(s.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { httputil.NotFound(w, "not found") })
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) { httputil.MethodNotAllowed(w) })

	r.Route("/api", func(r chi.Router) {
		r.Get("/statistics", s.showStatistics)
		r.Get("/traffic", s.showTraffic)
		r.Get("/roads/{roadID}", s.showRoad)
		r.Get("/sensors", s.showSensors)
		r.Get("/sensors/{approach}", s.showSensor)
		r.Get("/lights", s.showLights)
		r.Get("/vehicles", s.showVehicles)
		r.Get("/charts/vehicles", s.showVehicleChart)
		r.Get("/charts/roads", s.showRoadChart)
		r.Get("/export", s.export)
		r.Get("/version", showVersion)

		r.Get("/config", s.showConfig)
		r.Post("/config", s.updateConfig)
		r.Get("/turns", s.showTurns)
		r.Post("/turns", s.updateTurns)
		r.Get("/demand", s.showDemand)
		r.Post("/demand", s.updateDemand)

		r.Post("/start", s.start)
		r.Post("/stop", s.stop)
		r.Post("/reset", s.reset)
	})
	return r
}

// requestUnits returns the units query parameter or the server default.
func (s *Server) requestUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid 'units' parameter, must be one of: %s", units.GetValidUnitsString())
	}
	return u, nil
}

type statisticsResponse struct {
	engine.Statistics
	AverageSpeed float64 `json:"averageSpeed"`
	Units        string  `json:"units"`
	SimTime      float64 `json:"simTime"`
	Running      bool    `json:"running"`
	RunID        string  `json:"runId"`
}

func (s *Server) showStatistics(w http.ResponseWriter, r *http.Request) {
	u, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var resp statisticsResponse
	s.runner.Do(func(sim *engine.Simulation) {
		resp = statisticsResponse{
			Statistics:   sim.Statistics(),
			AverageSpeed: units.ConvertSpeed(sim.TrafficStatistics().AverageSpeed, u),
			Units:        u,
			SimTime:      sim.SimTime(),
			Running:      sim.Running(),
			RunID:        sim.RunID().String(),
		}
	})
	httputil.WriteJSONOK(w, resp)
}

func convertTraffic(ts road.TrafficStatistics, u string) road.TrafficStatistics {
	ts.AverageSpeed = units.ConvertSpeed(ts.AverageSpeed, u)
	converted := make(map[int]road.RoadStats, len(ts.RoadStats))
	for id, rs := range ts.RoadStats {
		rs.AverageSpeed = units.ConvertSpeed(rs.AverageSpeed, u)
		converted[id] = rs
	}
	ts.RoadStats = converted
	return ts
}

func (s *Server) showTraffic(w http.ResponseWriter, r *http.Request) {
	u, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var ts road.TrafficStatistics
	s.runner.Do(func(sim *engine.Simulation) { ts = sim.TrafficStatistics() })
	httputil.WriteJSONOK(w, convertTraffic(ts, u))
}

func (s *Server) showRoad(w http.ResponseWriter, r *http.Request) {
	u, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "roadID"))
	if err != nil {
		httputil.BadRequest(w, "road id must be an integer")
		return
	}
	var ts road.TrafficStatistics
	s.runner.Do(func(sim *engine.Simulation) { ts = sim.TrafficStatistics() })
	rs, ok := ts.RoadStats[id]
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no road %d", id))
		return
	}
	rs.AverageSpeed = units.ConvertSpeed(rs.AverageSpeed, u)
	httputil.WriteJSONOK(w, struct {
		Road int `json:"road"`
		road.RoadStats
		Units string `json:"units"`
	}{id, rs, u})
}

func (s *Server) showSensors(w http.ResponseWriter, r *http.Request) {
	var resp struct {
		Sensors           any `json:"sensors"`
		TotalCarsDetected int `json:"totalCarsDetected"`
	}
	s.runner.Do(func(sim *engine.Simulation) {
		resp.Sensors = sim.SensorData()
		resp.TotalCarsDetected = sim.TotalCarsDetected()
	})
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showSensor(w http.ResponseWriter, r *http.Request) {
	a, err := signal.ParseApproach(chi.URLParam(r, "approach"))
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	var zs detection.ZoneState
	s.runner.Do(func(sim *engine.Simulation) { zs = sim.Sensor(a) })
	httputil.WriteJSONOK(w, zs)
}

func (s *Server) showLights(w http.ResponseWriter, r *http.Request) {
	var resp struct {
		Lights map[string]string `json:"lights"`
		Signal signal.State      `json:"signal"`
	}
	s.runner.Do(func(sim *engine.Simulation) {
		resp.Lights = sim.LightStates()
		resp.Signal = sim.SignalState()
	})
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showVehicles(w http.ResponseWriter, r *http.Request) {
	var resp struct {
		Alpha    float64               `json:"alpha"`
		Vehicles []engine.VehicleState `json:"vehicles"`
	}
	s.runner.Do(func(sim *engine.Simulation) {
		resp.Alpha = sim.Alpha()
		resp.Vehicles = sim.Vehicles()
	})
	if resp.Vehicles == nil {
		resp.Vehicles = []engine.VehicleState{}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	var exp engine.Export
	s.runner.Do(func(sim *engine.Simulation) { exp = sim.ExportTrafficData() })

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		httputil.WriteJSONOK(w, exp)
	case "pb":
		msg, err := ExportStruct(exp)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to encode export: %v", err))
			return
		}
		httputil.WriteProto(w, msg)
	default:
		httputil.BadRequest(w, fmt.Sprintf("unsupported format %q", format))
	}
}

// ExportStruct converts an export into a protobuf Struct with the same keys
// as its JSON form.
func ExportStruct(exp engine.Export) (*structpb.Struct, error) {
	return httputil.StructOf(exp)
}

func showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, version.Get())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	var settings *config.Settings
	s.runner.Do(func(sim *engine.Simulation) { settings = sim.Settings() })
	httputil.WriteJSONOK(w, settings)
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var update config.Settings
	if err := httputil.DecodeJSON(r, &update); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var (
		settings *config.Settings
		err      error
	)
	s.runner.Do(func(sim *engine.Simulation) {
		if err = sim.ApplySettings(&update); err == nil {
			settings = sim.Settings()
		}
	})
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, settings)
}

type turnsRequest struct {
	Straight *float64 `json:"straight"`
	Right    *float64 `json:"right"`
	Left     *float64 `json:"left"`
}

func (s *Server) showTurns(w http.ResponseWriter, r *http.Request) {
	var tp road.TurnProbabilities
	s.runner.Do(func(sim *engine.Simulation) { tp = sim.TurnProbabilities() })
	httputil.WriteJSONOK(w, tp)
}

func (s *Server) updateTurns(w http.ResponseWriter, r *http.Request) {
	var req turnsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Straight == nil || req.Right == nil || req.Left == nil {
		httputil.BadRequest(w, "straight, right and left are all required")
		return
	}
	var (
		tp  road.TurnProbabilities
		err error
	)
	s.runner.Do(func(sim *engine.Simulation) {
		err = sim.SetTurnProbabilities(*req.Straight, *req.Right, *req.Left)
		tp = sim.TurnProbabilities()
	})
	if errors.Is(err, engine.ErrInvalidTurnProbabilities) {
		httputil.BadRequest(w, err.Error())
		return
	} else if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, tp)
}

// demandMap renders per-approach rates keyed by approach name.
func demandMap(d map[signal.Approach]float64) map[string]float64 {
	out := make(map[string]float64, len(d))
	for a, rate := range d {
		out[a.String()] = rate
	}
	return out
}

func (s *Server) showDemand(w http.ResponseWriter, r *http.Request) {
	var d map[signal.Approach]float64
	s.runner.Do(func(sim *engine.Simulation) { d = sim.TrafficDemand() })
	httputil.WriteJSONOK(w, demandMap(d))
}

func (s *Server) updateDemand(w http.ResponseWriter, r *http.Request) {
	var req map[string]float64
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	demand := make(map[signal.Approach]float64, len(req))
	for name, rate := range req {
		a, err := signal.ParseApproach(name)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if rate < 0 {
			httputil.BadRequest(w, fmt.Sprintf("demand for %s must be non-negative", a))
			return
		}
		demand[a] = rate
	}
	var d map[signal.Approach]float64
	s.runner.Do(func(sim *engine.Simulation) {
		sim.SetTrafficDemand(demand)
		d = sim.TrafficDemand()
	})
	httputil.WriteJSONOK(w, demandMap(d))
}

type runState struct {
	Running bool    `json:"running"`
	RunID   string  `json:"runId"`
	SimTime float64 `json:"simTime"`
}

func stateOf(sim *engine.Simulation) runState {
	return runState{Running: sim.Running(), RunID: sim.RunID().String(), SimTime: sim.SimTime()}
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	var st runState
	s.runner.Do(func(sim *engine.Simulation) {
		sim.Start()
		st = stateOf(sim)
	})
	httputil.WriteJSONOK(w, st)
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	var st runState
	s.runner.Do(func(sim *engine.Simulation) {
		sim.Stop()
		st = stateOf(sim)
	})
	httputil.WriteJSONOK(w, st)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	var st runState
	s.runner.Do(func(sim *engine.Simulation) {
		sim.Reset()
		if s.OnReset != nil {
			s.OnReset(sim)
		}
		st = stateOf(sim)
	})
	httputil.WriteJSONOK(w, st)
}
