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

package internal

import (
	"context"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/Frits1980/heating-pid/internal/db"
	"github.com/Frits1980/heating-pid/internal/heatsource"
	"github.com/Frits1980/heating-pid/internal/valve"
)

type fakeSensors struct {
	values map[string]float64
}

func newFakeSensors() *fakeSensors {
	return &fakeSensors{values: make(map[string]float64)}
}

func (f *fakeSensors) Read(id string) (float64, bool) {
	v, ok := f.values[id]
	return v, !ok
}

func (f *fakeSensors) set(id string, v float64) {
	f.values[id] = v
}

func (f *fakeSensors) drop(id string) {
	delete(f.values, id)
}

type fakeStore struct {
	snap    *db.Snapshot
	loadErr error
	saveErr error
	saves   []*db.Snapshot
	values  map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{snap: db.NewSnapshot(), values: make(map[string]string)}
}

func (f *fakeStore) Load(context.Context) (*db.Snapshot, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.snap, nil
}

func (f *fakeStore) Save(_ context.Context, snap *db.Snapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, snap)
	return nil
}

func (f *fakeStore) SetControllerValue(_ context.Context, name, value string) error {
	f.values[name] = value
	return nil
}

func (f *fakeStore) ControllerValue(_ context.Context, name string) (string, bool, error) {
	v, ok := f.values[name]
	return v, ok, nil
}

func (f *fakeStore) last() *db.Snapshot {
	if len(f.saves) == 0 {
		return nil
	}
	return f.saves[len(f.saves)-1]
}

type fakeHeat struct {
	cmds []heatsource.Command
	err  error
}

func (f *fakeHeat) Command(ctx context.Context, cmd heatsource.Command) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	if f.err != nil {
		return f.err
	}
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeHeat) last() heatsource.Command {
	return f.cmds[len(f.cmds)-1]
}

type fakeActuator struct {
	capability valve.Capability

	mu   sync.Mutex
	cmds []valve.Command
}

func (f *fakeActuator) Capability() valve.Capability { return f.capability }

func (f *fakeActuator) Command(_ context.Context, cmd valve.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeActuator) commands() []valve.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]valve.Command(nil), f.cmds...)
}

type published struct {
	topic    string
	retained bool
	payload  interface{}
}

// fakeMQTT records publishes and subscriptions. Tokens are not used by callers.
type fakeMQTT struct {
	mu   sync.Mutex
	pubs []published
	subs map[string]mqtt.MessageHandler
	err  error
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{subs: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) SafePublish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, published{topic: topic, retained: retained, payload: payload})
	return nil
}

func (f *fakeMQTT) SafeSubscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = callback
	return nil
}

func (f *fakeMQTT) SafeUnsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.subs, t)
	}
	return nil
}

func (f *fakeMQTT) PublishWait(ctx context.Context, topic string, _ byte, retained bool, payload interface{}) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return errors.Wrapf(f.err, "publish %s", topic)
	}
	f.pubs = append(f.pubs, published{topic: topic, retained: retained, payload: payload})
	return nil
}

func (f *fakeMQTT) Disconnect() {}

func (f *fakeMQTT) published(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.pubs {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// deliver invokes the handler subscribed to topic.
func (f *fakeMQTT) deliver(topic string, payload string) bool {
	return f.send(fakeMessage{topic: topic, payload: []byte(payload)})
}

// deliverRetained replays a stored message as the broker does on subscribe.
func (f *fakeMQTT) deliverRetained(topic string, payload string) bool {
	return f.send(fakeMessage{topic: topic, payload: []byte(payload), retained: true})
}

func (f *fakeMQTT) send(m fakeMessage) bool {
	f.mu.Lock()
	cb, ok := f.subs[m.topic]
	f.mu.Unlock()
	if !ok {
		return false
	}
	cb(nil, m)
	return true
}

type fakeMessage struct {
	mqtt.Message
	topic    string
	payload  []byte
	retained bool
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }
func (m fakeMessage) Retained() bool  { return m.retained }
