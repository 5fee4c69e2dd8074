package logger

import (
	"go.uber.org/zap"
)

func New(env string) (*zap.SugaredLogger, error) {
	var l *zap.Logger
	var err error
	if env == "production" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
