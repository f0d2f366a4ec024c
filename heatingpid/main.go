/*
 * Copyright (c) 2024. Frits1980 -- All Rights Reserved
 *
 * This file is part of HEATING-PID project.
 *
 * HEATING-PID is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as the Free Software Foundation,
 * either version 3 of the License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Frits1980/heating-pid/internal"
	"github.com/Frits1980/heating-pid/internal/clock"
	"github.com/Frits1980/heating-pid/internal/config"
	"github.com/Frits1980/heating-pid/internal/db"
	"github.com/Frits1980/heating-pid/internal/logger"
	"github.com/Frits1980/heating-pid/internal/safe_mqtt"
	"github.com/Frits1980/heating-pid/internal/schedule"
	"github.com/Frits1980/heating-pid/internal/valve"
)

// Build version, overridden with flag during build.
var version = "devel"

func main() {
	logger.L().Warnf("Heating PID controller, version: %+v", version)
	err := run()
	if err != nil {
		logger.L().Error(err)
	}
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Get()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(cfg.DBFile)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := safe_mqtt.InitMQTTClient(ctx, cfg.MQTTConfig.URL, safe_mqtt.NewClientID("heatingpid"))
	if err != nil {
		return err
	}
	defer client.Disconnect()

	clk := clock.Real()
	hub := internal.NewSensorHub(clk)
	hub.RegisterConfig(cfg)

	schedules := schedule.NewSource()
	valves := make(map[string]valve.Actuator, len(cfg.Zones))
	for name, z := range cfg.Zones {
		if w := z.Week(); w != nil {
			schedules.Set(name, w)
		}
		valves[name] = internal.NewValveActuator(z.Valve, client)
	}

	loop, err := internal.NewControlLoop(cfg, internal.Deps{
		Clock:    clk,
		Sensors:  hub,
		Schedule: schedules,
		Store:    store,
		Heat:     internal.NewBoilerController(cfg.HeatSource, client),
		Status:   client,
		Valves:   valves,
	})
	if err != nil {
		return err
	}

	hub.Subscribe(client, cfg.MQTTConfig.ControlTopic)
	internal.NewEventBridge(cfg, loop).Subscribe(client)

	if cfg.MetricsListen != "" {
		srv := serveMetrics(cfg.MetricsListen)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	loop.Run(ctx)
	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.L().Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L().Errorf("Metrics server: %v", err)
		}
	}()
	return srv
}
