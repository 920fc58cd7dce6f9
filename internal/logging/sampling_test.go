package logging

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSampledCore_ErrorsNeverSampled(t *testing.T) {
	base, observed := observer.New(zapcore.DebugLevel)
	core := newSampledCore(base, SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Minute),
		Initial:    2,
		Thereafter: 0,
	})
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		logger.Info(ctx, "repeated info")
		logger.Error(ctx, "repeated error")
	}

	assert.Equal(t, 2, observed.FilterMessage("repeated info").Len())
	assert.Equal(t, 10, observed.FilterMessage("repeated error").Len())
}

func TestSampledCore_Disabled(t *testing.T) {
	base, _ := observer.New(zapcore.InfoLevel)
	assert.Same(t, base, newSampledCore(base, SamplingConfig{}))
}

func TestLevelFilterCore_InfoBound(t *testing.T) {
	base, _ := observer.New(TraceLevel)

	infoAndUp := &levelFilterCore{Core: base, minLevel: zapcore.InfoLevel, hasMin: true}
	assert.False(t, infoAndUp.Enabled(zapcore.DebugLevel))
	assert.True(t, infoAndUp.Enabled(zapcore.InfoLevel))
	assert.True(t, infoAndUp.Enabled(zapcore.ErrorLevel))

	upToInfo := &levelFilterCore{Core: base, maxLevel: zapcore.InfoLevel, hasMax: true}
	assert.True(t, upToInfo.Enabled(TraceLevel))
	assert.False(t, upToInfo.Enabled(zapcore.WarnLevel))

	child := upToInfo.With([]zapcore.Field{zap.String("k", "v")})
	assert.False(t, child.Enabled(zapcore.WarnLevel))
}
