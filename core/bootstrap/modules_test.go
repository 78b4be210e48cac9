package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/kinobot/core/config"
)

func TestRunSeedersStopsOnFirstFailure(t *testing.T) {
	var ran []string
	ok := SeederFunc{Label: "admins", Fn: func(context.Context) error { ran = append(ran, "admins"); return nil }}
	bad := SeederFunc{Label: "channels", Fn: func(context.Context) error { ran = append(ran, "channels"); return errors.New("boom") }}
	never := SeederFunc{Label: "movies", Fn: func(context.Context) error { ran = append(ran, "movies"); return nil }}

	err := RunSeeders(context.Background(), ok, nil, bad, never)
	require.ErrorContains(t, err, "seeder channels failed")
	require.Equal(t, []string{"admins", "channels"}, ran)
}

func TestRunWithoutDatabase(t *testing.T) {
	res, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return nil },
	})
	require.NoError(t, err)
	require.Nil(t, res.DB)

	_, err = Run(Options{})
	require.Error(t, err)
}
