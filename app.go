package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"quadenc/console"
	"quadenc/encoder"
	"quadenc/eventpipe"
	"quadenc/indicator"
	"quadenc/input"
	"quadenc/keyboard"
	"quadenc/mqtt"
)

// App holds the application state and dependencies.
type App struct {
	cfg       *Config
	pins      *input.Pair
	enc       *encoder.Encoder
	mqtt      *mqtt.Client
	indicator indicator.Indicator
	pipe      *eventpipe.EventPipe
	keyboard  *keyboard.Keyboard
	console   *console.Console
	min, max  int64
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// Owned by the poll loop
	havePos  bool
	lastPos  int64
	limitHit bool
}

// PositionStatus is published whenever the bounded position changes.
type PositionStatus struct {
	Position  int64  `json:"position"`
	Value     int64  `json:"value"`
	Direction string `json:"direction"`
}

// LimitStatus is published when a read leaves the configured bounds.
type LimitStatus struct {
	Limit    string `json:"limit"`
	Position int64  `json:"position"`
	Wrapped  int64  `json:"wrapped_to"`
}

// newApp opens every configured device. Nothing runs until start.
func newApp(cfg *Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	app.min, app.max = cfg.Encoder.Bounds()

	var err error
	fail := func(what string, err error) (*App, error) {
		app.shutdown()
		return nil, fmt.Errorf("init %s: %w", what, err)
	}

	app.indicator, err = indicator.New(cfg.Indicator)
	if err != nil {
		return fail("indicator", err)
	}
	app.indicator.ConnectionLost()

	app.mqtt, err = mqtt.New(cfg.MQTT, cfg.ClientID, mqtt.Handlers{
		OnConnect:    app.onMQTTConnect,
		OnDisconnect: app.onMQTTDisconnect,
		OnControl:    app.onControl,
	})
	if err != nil {
		return fail("MQTT", err)
	}

	app.pins, err = input.New(cfg.Input)
	if err != nil {
		return fail("input", err)
	}

	opts := append(cfg.Encoder.Options(), encoder.WithHandlers(encoder.Handlers{
		OnMinReached: app.onMinReached,
		OnMaxReached: app.onMaxReached,
	}))
	app.enc, err = encoder.New(app.pins.A, app.pins.B, opts...)
	if err != nil {
		return fail("encoder", err)
	}
	log.Printf("Encoder initialized (%s A=%d B=%d scale=%d reverse=%v bounds=%d..%d)",
		cfg.Input.Type, cfg.Input.PinA, cfg.Input.PinB, app.enc.Scale(), app.enc.Reversed(), app.min, app.max)

	app.pipe, err = eventpipe.New(cfg.EventPipe, app.applyCommand)
	if err != nil {
		return fail("event pipe", err)
	}

	app.keyboard, err = keyboard.New(cfg.Keyboard, app.applyCommand)
	if err != nil {
		return fail("keyboard", err)
	}

	app.console, err = console.New(cfg.Console, app.applyCommand)
	if err != nil {
		return fail("serial console", err)
	}

	return app, nil
}

// start launches the background goroutines. Connect may retry until
// Disconnect, so it is not waited on by shutdown.
func (app *App) start() {
	go func() {
		if err := app.mqtt.Connect(); err != nil {
			log.Printf("MQTT connect: %v", err)
		}
	}()
	app.goRun(app.pollLoop)
	app.goRun(app.pingSender)
	if app.pipe != nil {
		go app.pipe.Start()
	}
	if app.keyboard != nil {
		go app.keyboard.Start()
	}
	if app.console != nil {
		go app.console.Start()
	}
}

func (app *App) goRun(f func()) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		f()
	}()
}

// shutdown stops the loops and releases everything newApp opened. The
// encoder is disarmed first, before anything that can block.
func (app *App) shutdown() {
	app.cancel()

	if app.enc != nil {
		if err := app.enc.Close(); err != nil {
			log.Printf("Close encoder: %v", err)
		}
	}
	if app.pins != nil {
		if err := app.pins.Close(); err != nil {
			log.Printf("Close input: %v", err)
		}
	}

	app.wg.Wait()

	if app.pipe != nil {
		app.pipe.Close()
	}
	if app.keyboard != nil {
		app.keyboard.Close()
	}
	if app.console != nil {
		app.console.Close()
	}
	if app.mqtt != nil {
		app.mqtt.Disconnect()
	}
	if app.indicator != nil {
		app.indicator.Shutdown()
		app.indicator.Release()
	}
}

func (app *App) pollLoop() {
	ticker := time.NewTicker(app.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.poll()
		}
	}
}

// poll performs one bounded read and reports a changed position.
func (app *App) poll() {
	pos, err := app.enc.ClampRead(app.min, app.max)
	if err != nil {
		log.Printf("Read position: %v", err)
		return
	}
	limitHit := app.limitHit
	app.limitHit = false
	if app.havePos && pos == app.lastPos {
		return
	}
	app.havePos = true
	app.lastPos = pos

	if !limitHit {
		app.indicator.InRange()
	}

	log.Printf("Position %d", pos)
	status := PositionStatus{
		Position:  pos,
		Value:     app.enc.Value(),
		Direction: app.enc.Direction().String(),
	}
	if err := app.mqtt.PublishStatus("position", status); err != nil {
		log.Printf("Publish position: %v", err)
	}
}

func (app *App) onMinReached(pos int64) {
	log.Printf("Min value reached (%d), wrapped to %d", pos, app.max)
	app.limitHit = true
	app.indicator.MinReached()
	app.publishLimit("min", pos, app.max)
}

func (app *App) onMaxReached(pos int64) {
	log.Printf("Max value reached (%d), wrapped to %d", pos, app.min)
	app.limitHit = true
	app.indicator.MaxReached()
	app.publishLimit("max", pos, app.min)
}

func (app *App) publishLimit(limit string, pos, wrapped int64) {
	err := app.mqtt.PublishStatus("limit", LimitStatus{Limit: limit, Position: pos, Wrapped: wrapped})
	if err != nil {
		log.Printf("Publish limit: %v", err)
	}
}

func (app *App) pingSender() {
	ticker := time.NewTicker(120 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.mqtt.Publish(app.mqtt.StatusTopic("ping"), `{"status":"ok"}`)
		}
	}
}

func (app *App) onMQTTConnect() {
	app.indicator.InRange()
}

func (app *App) onMQTTDisconnect() {
	app.indicator.ConnectionLost()
}

// onControl handles <prefix>/control/node/<id>/<verb> with the payload as
// the command argument, e.g. verb "position" payload "42".
func (app *App) onControl(verb string, payload []byte) {
	line := strings.TrimSpace(verb + " " + string(payload))
	cmd, err := eventpipe.ParseLine(line)
	if err != nil {
		log.Printf("MQTT control %q: %v", line, err)
		return
	}
	if cmd.Kind != eventpipe.Nop {
		app.applyCommand(cmd)
	}
}

// applyCommand executes a command from any of the command inputs.
func (app *App) applyCommand(cmd eventpipe.Command) {
	if cmd.Kind.Simulated() && app.pins.Sim == nil {
		log.Printf("Command %s needs input type sim, have %q", cmd.Kind, app.cfg.Input.Type)
		return
	}

	switch cmd.Kind {
	case eventpipe.Step:
		app.pins.Sim.Step(int(cmd.N))
	case eventpipe.Turn:
		app.pins.Sim.Turn(int(cmd.N))
	case eventpipe.Level:
		pin := app.pins.Sim.A
		if cmd.Pin == "b" {
			pin = app.pins.Sim.B
		}
		pin.Set(cmd.High)
	case eventpipe.Reset:
		app.enc.Reset()
		log.Println("Encoder reset")
	case eventpipe.Position:
		log.Printf("Position set to %d", app.enc.SetPosition(cmd.N))
	case eventpipe.Value:
		log.Printf("Value set to %d", app.enc.SetValue(cmd.N))
	}
}
