package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"

	"github.com/golang/glog"

	fx "github.com/robotalks/fxlink/pkg/framework"
	"github.com/robotalks/fxlink/pkg/comm"
	"github.com/robotalks/fxlink/pkg/env"
	"github.com/robotalks/fxlink/pkg/link"
	"github.com/robotalks/fxlink/pkg/link/mqtt"
	"github.com/robotalks/fxlink/pkg/store"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	if err := env.LoadConfigFile(); err != nil {
		log.Fatalln(err)
	}
	conf := env.Default()

	runner := fx.NewRunner().HandleSignals()
	server := conf.MustNewServer(runner.Context)
	conn := server.Conn()
	glog.Infof("serving %s", conf.LinkURL)

	runners := []fx.Runnable{
		fx.NamedRun(server.Name(), fx.RunFunc(func(ctx context.Context) error {
			return fx.RunWithContextCloser(ctx, conn, func() error { return server.Run(ctx) })
		})),
	}
	var (
		notifiers comm.Notifiers
		db        *store.RedisStore
	)
	if conf.RedisURL != "" {
		var err error
		if db, err = store.NewRedisStore(conf.RedisURL); err != nil {
			log.Fatalln(err)
		}
		n, err := db.Load(server.Registers)
		if err != nil {
			log.Fatalln(err)
		}
		glog.Infof("loaded %d registers from %s", n, conf.RedisURL)
		notifiers = append(notifiers, db)
	}
	if conf.MQTTURL != "" {
		pub, err := mqtt.NewPublisher(conf.MQTTURL, link.ClientID(mqtt.RoleSlave)+"-events")
		if err != nil {
			log.Fatalln(err)
		}
		pub.Registers = server.Registers
		pub.Address = conf.Address()
		notifiers = append(notifiers, pub)
		runners = append(runners, pub)
	}
	if len(notifiers) > 0 {
		server.Notifier = notifiers
	}

	err := runner.Go(runners...).Wait()
	if db != nil {
		db.Close()
	}
	if err != nil {
		glog.Exitln(err)
	}
}
