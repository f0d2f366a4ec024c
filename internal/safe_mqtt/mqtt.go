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

package safe_mqtt

import (
	"context"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Frits1980/heating-pid/internal/logger"
)

const (
	reconnectInterval = 2 * time.Second
)

// MqttClient is bridge between our app and MQTT
type MqttClient interface {
	SafePublish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	SafeSubscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	SafeUnsubscribe(topics ...string) mqtt.Token
	// PublishWait publishes and waits for the broker acknowledgement or ctx.
	PublishWait(ctx context.Context, topic string, qos byte, retained bool, payload interface{}) error
	Disconnect()
}

type subscription struct {
	qos      byte
	callback mqtt.MessageHandler
}

type mqttClient struct {
	mutex sync.Mutex
	mqtt  mqtt.Client
	subs  map[string]subscription
}

var connectLostHandler = func(client mqtt.Client, err error) {
	logger.L().Warnf("Connection to MQTT broker lost: %v", err)
}

// NewClientID returns a unique client id with the given prefix.
func NewClientID(prefix string) string {
	return prefix + "-" + uuid.New().String()
}

// InitMQTTClient connects to the broker, retrying until ctx is done.
// Subscriptions are restored after every reconnect.
func InitMQTTClient(ctx context.Context, url, clientID string) (MqttClient, error) {
	m := &mqttClient{subs: make(map[string]subscription)}

	opts := mqtt.NewClientOptions().
		AddBroker(url).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(reconnectInterval)

	opts.OnConnect = m.onConnect
	opts.OnConnectionLost = connectLostHandler

	m.mqtt = mqtt.NewClient(opts)
	if err := connect(ctx, m.mqtt); err != nil {
		return nil, err
	}
	return m, nil
}

func connect(ctx context.Context, client mqtt.Client) error {
	for {
		token := client.Connect()
		select {
		case <-token.Done():
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "mqtt connect")
		}
		if token.Error() == nil {
			return nil
		}
		logger.L().Warnf("Connection failed, retrying in %v: %v", reconnectInterval, token.Error())
		select {
		case <-time.After(reconnectInterval):
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "mqtt connect")
		}
	}
}

func (m *mqttClient) onConnect(client mqtt.Client) {
	or := client.OptionsReader()
	logger.L().Infof("Connected to MQTT broker: %v as %s", or.Servers(), or.ClientID())

	m.mutex.Lock()
	defer m.mutex.Unlock()
	for topic, s := range m.subs {
		client.Subscribe(topic, s.qos, s.callback)
	}
}

func (m *mqttClient) SafePublish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.mqtt.Publish(topic, qos, retained, payload)
}

func (m *mqttClient) PublishWait(ctx context.Context, topic string, qos byte, retained bool, payload interface{}) error {
	token := m.SafePublish(topic, qos, retained, payload)
	select {
	case <-token.Done():
		return errors.Wrapf(token.Error(), "publish %s", topic)
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "publish %s", topic)
	}
}

func (m *mqttClient) SafeSubscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.subs[topic] = subscription{qos: qos, callback: callback}
	return m.mqtt.Subscribe(topic, qos, callback)
}

func (m *mqttClient) SafeUnsubscribe(topics ...string) mqtt.Token {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, t := range topics {
		delete(m.subs, t)
	}
	return m.mqtt.Unsubscribe(topics...)
}

func (m *mqttClient) Disconnect() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.mqtt.Disconnect(250)
}
