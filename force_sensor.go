package forcetrial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"forcetrial/internal/acquisition"
	"forcetrial/internal/display"
	"forcetrial/internal/serialsource"
	"forcetrial/internal/store"
)

var ForceSensor = resource.NewModel("viamdemo", "force-trial", "force-sensor")

func init() {
	resource.RegisterComponent(sensor.API, ForceSensor,
		resource.Registration[sensor.Sensor, *ForceSensorConfig]{
			Constructor: newForceSensor,
		},
	)
}

type ForceSensorConfig struct {
	SerialPort string `json:"serial_port,omitempty"` // required unless use_mock
	BaudRate   uint   `json:"baud_rate,omitempty"`   // default: 9600
	UseMock    bool   `json:"use_mock,omitempty"`    // simulate the load cell instead of reading the port
	MockRateHz int    `json:"mock_rate_hz,omitempty"`

	Invert             bool `json:"invert,omitempty"`
	StabilizationCount *int `json:"stabilization_count,omitempty"` // default: 50
	WindowLength       int  `json:"window_length,omitempty"`       // default: 40
	SampleStride       int  `json:"sample_stride,omitempty"`       // default: 1

	DataDir     string `json:"data_dir,omitempty"`
	PostgresDSN string `json:"postgres_dsn,omitempty"`
	Artifacts   bool   `json:"artifacts,omitempty"`

	MQTTBroker  string `json:"mqtt_broker,omitempty"`  // e.g. tcp://localhost:1883
	MQTTTopic   string `json:"mqtt_topic,omitempty"`   // topic prefix, default: forcetrial
	DisplayAddr string `json:"display_addr,omitempty"` // websocket listen address, e.g. :8090
}

func (cfg *ForceSensorConfig) Validate(path string) ([]string, []string, error) {
	if !cfg.UseMock && cfg.SerialPort == "" {
		return nil, nil, fmt.Errorf("%s: serial_port is required unless use_mock is set", path)
	}
	if cfg.MockRateHz < 0 {
		return nil, nil, fmt.Errorf("%s: mock_rate_hz must not be negative", path)
	}
	if err := cfg.storage().validate(path); err != nil {
		return nil, nil, err
	}
	if err := cfg.acquisitionConfig().Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return nil, nil, nil
}

func (cfg *ForceSensorConfig) storage() StorageConfig {
	return StorageConfig{DataDir: cfg.DataDir, PostgresDSN: cfg.PostgresDSN, Artifacts: cfg.Artifacts}
}

func (cfg *ForceSensorConfig) acquisitionConfig() acquisition.Config {
	c := acquisition.DefaultConfig()
	c.Invert = cfg.Invert
	if cfg.StabilizationCount != nil {
		c.StabilizationCount = *cfg.StabilizationCount
	}
	if cfg.WindowLength != 0 {
		c.WindowLength = cfg.WindowLength
	}
	if cfg.SampleStride != 0 {
		c.SampleStride = cfg.SampleStride
	}
	return c
}

func (cfg *ForceSensorConfig) opener() acquisition.Opener {
	if cfg.UseMock {
		rate := cfg.MockRateHz
		if rate <= 0 {
			rate = defaultMockRateHz
		}
		return func() (acquisition.Source, error) {
			return newMockLoadCell(rate), nil
		}
	}
	opts := serialsource.Options{PortName: cfg.SerialPort, BaudRate: cfg.BaudRate}
	return func() (acquisition.Source, error) {
		port, err := serialsource.Open(opts)
		if err != nil {
			return nil, err
		}
		return port, nil
	}
}

const (
	defaultMockRateHz = 80
	// mockCycle is the number of samples per simulated press.
	mockCycle = 40
)

// mockLoadCell simulates a load cell on a press rig: a baseline near zero
// with one force pulse every mockCycle samples.
type mockLoadCell struct {
	ticker *time.Ticker
	closed chan struct{}
	once   sync.Once
	n      int
}

func newMockLoadCell(rateHz int) *mockLoadCell {
	return &mockLoadCell{
		ticker: time.NewTicker(time.Second / time.Duration(rateHz)),
		closed: make(chan struct{}),
	}
}

func (m *mockLoadCell) Flush() error { return nil }

func (m *mockLoadCell) ReadLine() ([]byte, error) {
	select {
	case <-m.closed:
		return nil, io.EOF
	case <-m.ticker.C:
	}

	m.n++
	force := 0.2
	phase := float64(m.n%mockCycle) / mockCycle
	if phase < 0.5 {
		// Pulse height varies a little from cycle to cycle.
		peak := 20.0 + 2.5*math.Sin(float64(m.n/mockCycle))
		force += peak * math.Sin(2*math.Pi*phase)
	}
	return strconv.AppendFloat(nil, force, 'f', 3, 64), nil
}

func (m *mockLoadCell) Close() error {
	m.once.Do(func() {
		m.ticker.Stop()
		close(m.closed)
	})
	return nil
}

type forceSensor struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger

	engine     *acquisition.Engine
	acqConfig  acquisition.Config
	open       acquisition.Opener
	trials     store.Store
	closeStore func()

	hub        *display.Hub
	server     *http.Server
	mqttClient mqtt.Client
}

func newForceSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*ForceSensorConfig](rawConf)
	if err != nil {
		return nil, err
	}

	trials, closeStore, err := OpenStore(ctx, conf.storage(), logger)
	if err != nil {
		return nil, err
	}

	fs := &forceSensor{
		name:       rawConf.ResourceName(),
		logger:     logger,
		acqConfig:  conf.acquisitionConfig(),
		open:       conf.opener(),
		trials:     trials,
		closeStore: closeStore,
	}

	var observers display.Fanout
	if conf.MQTTBroker != "" {
		client, err := display.Connect(conf.MQTTBroker, "forcetrial-"+rawConf.ResourceName().Name)
		if err != nil {
			closeStore()
			return nil, err
		}
		fs.mqttClient = client
		observers = append(observers, display.NewMQTTPublisher(client, conf.MQTTTopic, logger))
		logger.Infof("publishing display updates to %s", conf.MQTTBroker)
	}
	if conf.DisplayAddr != "" {
		fs.hub = display.NewHub(logger)
		mux := http.NewServeMux()
		mux.Handle("/ws", fs.hub)
		fs.server = &http.Server{Addr: conf.DisplayAddr, Handler: mux}
		go func() {
			if err := fs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("display server: %v", err)
			}
		}()
		observers = append(observers, fs.hub)
		logger.Infof("serving display updates on ws://%s/ws", conf.DisplayAddr)
	}

	fs.engine = acquisition.NewEngine(logger, acquisition.WithObserver(observers))

	if conf.UseMock {
		logger.Infof("force-sensor using simulated load cell (use_mock=true)")
	} else {
		logger.Infof("force-sensor reading %s", conf.SerialPort)
	}
	return fs, nil
}

func (fs *forceSensor) Name() resource.Name {
	return fs.name
}

func (fs *forceSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	result := fs.status()

	w := fs.engine.Window()
	times := make([]interface{}, len(w.Times))
	for i, v := range w.Times {
		times[i] = v
	}
	values := make([]interface{}, len(w.Values))
	for i, v := range w.Values {
		values[i] = v
	}
	result["window_times"] = times
	result["window_values"] = values
	return result, nil
}

func (fs *forceSensor) status() map[string]interface{} {
	st := fs.engine.Status()
	result := map[string]interface{}{
		"state":        st.State.String(),
		"trial_id":     st.TrialID,
		"progress":     st.Progress,
		"sample_count": st.Accepted,
	}
	if st.Accepted > 0 {
		result["max_force"] = st.MaxValue
	}
	if st.Err != nil {
		result["error"] = st.Err.Error()
	}
	return result
}

func (fs *forceSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'command' field")
	}

	switch command {
	case "start":
		return fs.handleStart(ctx, cmd)
	case "stop":
		return fs.handleStop(ctx)
	case "cancel":
		return fs.handleCancel(ctx)
	case "status":
		return fs.status(), nil
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func (fs *forceSensor) handleStart(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	trialID, _ := cmd["trial_id"].(string)
	if err := store.ValidateID(trialID); err != nil {
		return nil, err
	}
	if st := fs.engine.Status(); st.State.Active() {
		return nil, &acquisition.AlreadyRunningError{State: st.State}
	}

	// A new run under an existing id replaces the old trial and its report.
	deleted, err := fs.trials.DeleteTrial(ctx, trialID)
	if err != nil {
		return nil, fmt.Errorf("removing previous trial %q: %w", trialID, err)
	}
	if deleted {
		fs.logger.Infof("replacing existing trial %q", trialID)
	}

	if err := fs.engine.Start(ctx, trialID, fs.acqConfig, fs.open); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":   acquisition.StateStabilizing.String(),
		"trial_id": trialID,
	}, nil
}

func (fs *forceSensor) handleStop(ctx context.Context) (map[string]interface{}, error) {
	res, runErr := fs.engine.Stop(ctx)
	var ioErr *acquisition.IOFailure
	if runErr != nil && !errors.As(runErr, &ioErr) {
		return nil, runErr
	}

	result := map[string]interface{}{
		"status":       acquisition.StateStopped.String(),
		"trial_id":     res.Record.ID(),
		"sample_count": res.Record.Len(),
		"saved":        false,
	}
	if ioErr != nil {
		result["status"] = acquisition.StateFailed.String()
		result["error"] = ioErr.Error()
	}
	if !res.HasSamples {
		fs.logger.Infof("trial %q ended without samples, nothing saved", res.Record.ID())
		return result, nil
	}

	if err := fs.trials.SaveTrial(ctx, res.Record); err != nil {
		return nil, fmt.Errorf("saving trial %q: %w", res.Record.ID(), err)
	}
	values := res.Record.Values()
	maxForce := values[0]
	for _, v := range values[1:] {
		maxForce = math.Max(maxForce, v)
	}
	result["saved"] = true
	result["max_force"] = maxForce
	fs.logger.Infof("saved trial %q: %d samples, max force %.2f", res.Record.ID(), res.Record.Len(), maxForce)
	return result, nil
}

func (fs *forceSensor) handleCancel(ctx context.Context) (map[string]interface{}, error) {
	if err := fs.engine.Cancel(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": acquisition.StateCancelled.String()}, nil
}

func (fs *forceSensor) Close(ctx context.Context) error {
	var errs []error
	if fs.engine.Status().State.Active() {
		errs = append(errs, fs.engine.Cancel(ctx))
	}
	if fs.server != nil {
		errs = append(errs, fs.server.Shutdown(ctx))
	}
	if fs.hub != nil {
		fs.hub.Close()
	}
	if fs.mqttClient != nil {
		fs.mqttClient.Disconnect(250)
	}
	fs.closeStore()
	return errors.Join(errs...)
}
