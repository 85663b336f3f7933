// Command devtool is a maintenance helper for local environments. It
// applies the schema, seeds users and issues tokens for the websocket and
// REST endpoints, since sign-in lives in a separate service.
//
//	devtool [--config path] migrate
//	devtool seed-user --nickname Bob --email bob@example.com bob
//	devtool token [--hours 24] bob
//	devtool purge-read [--days 30]
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"gorm.io/gorm"

	"github.com/huangang/teamspace/internal/config"
	"github.com/huangang/teamspace/internal/models"
	"github.com/huangang/teamspace/internal/services"
	"github.com/huangang/teamspace/internal/utils"
	"github.com/huangang/teamspace/pkg/logger"
)

var (
	configPath = flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	nickname   = flag.String("nickname", "", "seed-user: display nickname")
	email      = flag.String("email", "", "seed-user: email address")
	hours      = flag.Int("hours", 0, "token: lifetime in hours (default jwt.expire_hour)")
	days       = flag.Int("days", 30, "purge-read: keep read notifications newer than this")
)

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	utils.SetJWTSecret(cfg.JWT.Secret)

	db, err := models.Open(&cfg.Database, "release")
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	ctx := context.Background()
	command, args := flag.Arg(0), flag.Args()[1:]

	switch command {
	case "migrate":
		fmt.Println("schema is up to date")
	case "seed-user":
		err = seedUser(ctx, db, args)
	case "token":
		err = issueToken(ctx, db, cfg, args)
	case "purge-read":
		err = purgeRead(ctx, db)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatalf("%s: %v", command, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: devtool [flags] migrate | seed-user <username> | token <username> | purge-read")
	flag.PrintDefaults()
}

func seedUser(ctx context.Context, db *gorm.DB, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("username is required")
	}
	user := &models.User{Username: args[0], Nickname: *nickname, Email: *email, IsActive: true}
	if err := services.NewUserService(db).Create(ctx, user); err != nil {
		return err
	}
	fmt.Printf("created user %d (%s)\n", user.ID, user.DisplayName())
	return nil
}

func issueToken(ctx context.Context, db *gorm.DB, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("username is required")
	}
	user, err := services.NewUserService(db).FindByUsername(ctx, args[0])
	if err != nil {
		return err
	}
	expire := cfg.JWT.ExpireHour
	if *hours > 0 {
		expire = *hours
	}
	token, err := utils.GenerateToken(user.ID, user.Username, expire)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func purgeRead(ctx context.Context, db *gorm.DB) error {
	if *days < 0 {
		return fmt.Errorf("invalid --days: %d", *days)
	}
	notifications := services.NewNotificationService(db, nil, nil, 0)
	removed, err := notifications.PurgeRead(ctx, time.Now().AddDate(0, 0, -*days))
	if err != nil {
		return err
	}
	fmt.Printf("removed %d read notifications\n", removed)
	return nil
}
