package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/robotalks/fxlink/pkg/link/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/fx/"
)

func init() {
	if val := os.Getenv("FX_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	q.Sub(mqtt.TopicPeerStatus, func(topic string, payload []byte) {
		status := string(payload)
		if status == "" {
			status = "offline"
		}
		log.Printf("%s: %s", topic, status)
	})
	mqtt.SubscribeRegisters(q, func(event *mqtt.RegisterEvent) {
		change := event.Change()
		at := ""
		if !change.Time.IsZero() {
			at = " at " + change.Time.Format(time.RFC3339Nano)
		}
		if change.Existed {
			log.Printf("%s %s: %s -> %s%s", change.Address, change.Device, change.Old, change.New, at)
		} else {
			log.Printf("%s %s: %s%s", change.Address, change.Device, change.New, at)
		}
	})
	if token := q.Client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
