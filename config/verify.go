package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/shlex"
	"github.com/realDragonium/Slumber/core"
	"go.uber.org/multierr"
)

var ErrMissingCommand = errors.New("server.command is required (SLUMBER_SERVER_COMMAND when no config file is used)")

type InvalidValue struct {
	Key    string
	Value  interface{}
	Reason string
}

func (err *InvalidValue) Error() string {
	return fmt.Sprintf("'%s' has invalid value %v: %s", err.Key, err.Value, err.Reason)
}

type VerifyFunc func(cfg SlumberConfig) error

// VerifyConfig returns every problem found in cfg combined into one error.
func VerifyConfig(cfg SlumberConfig) error {
	var err error

	err = multierr.Append(err, verifyAddress("public.address", cfg.Public.Address))
	err = multierr.Append(err, verifyAddress("server.address", cfg.Server.Address))
	if cfg.Public.Protocol < 0 {
		err = multierr.Append(err, &InvalidValue{"public.protocol", cfg.Public.Protocol, "can't be negative"})
	}

	if cfg.Server.Command == "" {
		err = multierr.Append(err, ErrMissingCommand)
	} else if args, splitErr := shlex.Split(cfg.Server.Command); splitErr != nil || len(args) == 0 {
		err = multierr.Append(err, &InvalidValue{"server.command", cfg.Server.Command, "can't be split into arguments"})
	}
	err = multierr.Append(err, verifyPositive("server.start_timeout", cfg.Server.StartTimeout))
	err = multierr.Append(err, verifyPositive("server.stop_timeout", cfg.Server.StopTimeout))
	err = multierr.Append(err, verifyPositive("time.sleep_after", cfg.Time.SleepAfter))
	if cfg.Time.MinOnlineTime < 0 {
		err = multierr.Append(err, &InvalidValue{"time.min_online_time", cfg.Time.MinOnlineTime, "can't be negative"})
	}

	plan, planErr := NewOccupationPlan(cfg)
	err = multierr.Append(err, planErr)
	for _, method := range plan {
		switch method.Kind {
		case core.Forward:
			err = multierr.Append(err, verifyAddress("join.forward.address", method.Address))
		case core.Hold:
			err = multierr.Append(err, verifyPositive("join.hold.timeout", cfg.Join.Hold.Timeout))
		case core.Lobby:
			err = multierr.Append(err, verifyPositive("join.lobby.timeout", cfg.Join.Lobby.Timeout))
		}
	}

	if cfg.Rcon.Enabled {
		if cfg.Rcon.Port <= 0 || cfg.Rcon.Port > 65535 {
			err = multierr.Append(err, &InvalidValue{"rcon.port", cfg.Rcon.Port, "not a valid port"})
		}
		if cfg.Rcon.Password == "" && !cfg.Rcon.RandomizePassword {
			err = multierr.Append(err, &InvalidValue{"rcon.password", `""`, "required when randomize_password is off"})
		}
	}

	if cfg.Metrics.Enabled {
		err = multierr.Append(err, verifyAddress("metrics.bind", cfg.Metrics.Bind))
	}
	if cfg.API.Enabled {
		err = multierr.Append(err, verifyAddress("api.bind", cfg.API.Bind))
	}
	err = multierr.Append(err, verifyPositive("runtime.workers", cfg.Runtime.Workers))
	err = multierr.Append(err, verifyPositive("runtime.io_timeout", cfg.Runtime.IOTimeout))

	return err
}

func verifyAddress(key, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return &InvalidValue{key, addr, err.Error()}
	}
	return nil
}

func verifyPositive(key string, n int) error {
	if n <= 0 {
		return &InvalidValue{key, n, "must be larger than 0"}
	}
	return nil
}
