package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v9"
	"github.com/rs/cors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "net/http/pprof"
)

func main() {
	log, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(log)
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.AddConfigPath("./")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	err := viper.ReadInConfig()
	if err != nil {
		log.Sugar().Fatal("init config error:", err)
	}

	err = viper.Unmarshal(&DefConfig)
	if err != nil {
		log.Sugar().Fatal("init config unmarshal error:", err)
	}
	if DefConfig.Redis.Channel == "" {
		DefConfig.Redis.Channel = "alerts_channel"
	}

	go func() {
		http.ListenAndServe(DefConfig.PprofHost, nil)
	}()

	db := openDB()
	rdb := openRedis()
	defer rdb.Close()

	registry := NewRegistry()
	ledger := NewLedger(db)
	queue := NewOfflineQueue(rdb, db)
	bus := NewBus(rdb, DefConfig.Redis.Channel)

	node := newNode(registry, queue)

	if DefConfig.Distributor.Enable {
		distributor := NewDistributor(db, registry, ledger, queue, node)
		go bus.Trigger(context.Background(), distributor)
	}

	api := NewAPI(db, bus, ledger)

	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	api.Routes(r)
	r.Get("/ws", node.serveWs)

	log.Sugar().Info("Start:", DefConfig.Host)
	err = http.ListenAndServe(DefConfig.Host, r)
	if err != nil {
		log.Sugar().Fatal("ListenAndServe: ", err)
	}
}

func openDB() *gorm.DB {
	log := zap.S()

	loglevel := logger.Error
	if DefConfig.DBLog {
		loglevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(DefConfig.DB), &gorm.Config{
		CreateBatchSize: 10,
		Logger: logger.New(zap.NewStdLog(zap.L()), logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      loglevel,
		}),
	})
	if err != nil {
		log.Fatal(err)
	}
	db.AutoMigrate(new(User), new(UserInterest), new(Alert), new(Notification))
	return db
}

func openRedis() *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         DefConfig.Redis.Host,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zap.S().Fatal("redis err:", err.Error())
	}
	return rdb
}
