package testutils

import (
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"unicorn/internal/logger"
)

// TestConfig 测试配置
type TestConfig struct {
	LogLevel logger.LogLevel
	Seed     int64
}

// DefaultTestConfig 默认测试配置
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		LogLevel: logger.LevelError, // 测试时减少日志输出
		Seed:     1,
	}
}

// TestSuite 测试套件
type TestSuite struct {
	T       *testing.T
	Config  *TestConfig
	Logger  logger.Logger
	RNG     *rand.Rand
	TempDir string
	Cleanup []func()
}

// NewTestSuite 创建测试套件
func NewTestSuite(t *testing.T, config *TestConfig) *TestSuite {
	if config == nil {
		config = DefaultTestConfig()
	}

	tempDir, err := os.MkdirTemp("", "unicorn_test_*")
	require.NoError(t, err)

	testLogger := logger.NewLogger(logger.Config{
		Level:  config.LogLevel,
		Format: logger.FormatText,
		Output: "stdout",
	})

	suite := &TestSuite{
		T:       t,
		Config:  config,
		Logger:  testLogger,
		RNG:     rand.New(rand.NewSource(config.Seed)),
		TempDir: tempDir,
	}
	suite.AddCleanup(func() {
		os.RemoveAll(tempDir)
	})
	return suite
}

// AddCleanup 添加清理函数
func (s *TestSuite) AddCleanup(fn func()) {
	s.Cleanup = append(s.Cleanup, fn)
}

// TearDown 清理测试环境
func (s *TestSuite) TearDown() {
	for i := len(s.Cleanup) - 1; i >= 0; i-- {
		s.Cleanup[i]()
	}
}
