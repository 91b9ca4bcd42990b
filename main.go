package main

import (
	"github.com/cppla/anyrate/config"
	"github.com/cppla/anyrate/models"
	"github.com/cppla/anyrate/routes"
	"github.com/cppla/anyrate/services"
	"github.com/cppla/anyrate/utils"
)

func main() {
	cfg := config.Load()

	utils.InitLogger(cfg)
	defer utils.Logger.Sync()

	config.InitDatabase(
		&models.Visitor{},
		&models.Item{},
		&models.ItemReport{},
		&models.Post{},
		&models.PostReport{},
		&models.Comment{},
	)
	db := config.DB()

	oracle := services.NewGeminiOracle(cfg)
	intake := services.NewIntakeService(db, oracle, cfg.OracleFailClosed)
	rating := services.NewRatingService(db)

	live := services.NewLiveHub()
	go live.Run()

	router := routes.SetupRouter(db, intake, rating, live)

	addr := ":" + cfg.AppPort
	utils.Sugar.Infof("listening on %s", addr)
	if err := utils.GraceServer(addr, router); err != nil {
		utils.Sugar.Errorf("server exited: %v", err)
	}
}
