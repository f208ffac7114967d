// Copyright 2016 Michael Stapelberg and contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mayqtt implements a best-effort MQTT client which publishes the
// status of the inpainting service to inpaint/status.
package mayqtt

import (
	"fmt"
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/net/trace"
)

const StatusTopic = "inpaint/status"

type PublishRequest struct {
	Topic    string
	Qos      byte
	Retained bool
	Payload  interface{}
}

func mqttLoop(broker, clientID string, requests <-chan PublishRequest) error {
	tr := trace.New("MQTT", "Loop")
	defer tr.Finish()

	tr.LazyPrintf("Connecting to MQTT broker %s", broker)
	opts := mqtt.NewClientOptions().AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetConnectRetry(true)
	opts.OnConnect = func(c mqtt.Client) {
		tr.LazyPrintf("OnConnect")
	}
	mqttClient := mqtt.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connection failed: %v", token.Error())
	}
	tr.LazyPrintf("Connected to MQTT broker %s", broker)

	for r := range requests {
		tr.LazyPrintf("publishing on topic %s: %q", r.Topic, r.Payload)
		// discard Token, MQTT publishing is best-effort
		_ = mqttClient.Publish(r.Topic, r.Qos, r.Retained, r.Payload)
	}
	return nil
}

// A Publisher publishes statuses. The zero value and a nil *Publisher drop
// all messages.
type Publisher struct {
	publish chan PublishRequest

	mu         sync.Mutex
	lastStatus string
}

// Start connects to broker in the background. An empty broker disables
// publishing.
func Start(broker, clientID string) *Publisher {
	p := &Publisher{}
	if broker == "" {
		return p
	}
	p.publish = make(chan PublishRequest)
	go func() {
		if err := mqttLoop(broker, clientID, p.publish); err != nil {
			log.Print(err)
		}
	}()
	return p
}

// Publishf formats a status and publishes it as a retained message, unless
// it equals the previous status.
func (p *Publisher) Publishf(format string, args ...interface{}) {
	if p == nil {
		return
	}
	status := fmt.Sprintf(format, args...)
	p.mu.Lock()
	defer p.mu.Unlock()
	// Prevent duplicate messages if status has not changed
	if p.lastStatus == status {
		return
	}
	p.lastStatus = status
	select {
	case p.publish <- PublishRequest{
		Topic:    StatusTopic,
		Retained: true,
		Payload:  []byte(status),
	}:
	default:
		// drop message if MQTT is not connected
	}
}

// LastStatus returns the most recent status passed to Publishf.
func (p *Publisher) LastStatus() string {
	if p == nil {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStatus
}
