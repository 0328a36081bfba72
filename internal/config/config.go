package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Staking  StakingConfig  `mapstructure:"staking"`
	Spin     SpinConfig     `mapstructure:"spin"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	StakeEvent string `mapstructure:"stake_event"`
	SpinEvent  string `mapstructure:"spin_event"`
	PoolEvent  string `mapstructure:"pool_event"`
}

// BusinessConfig 程序身份、代币与金库命名
type BusinessConfig struct {
	Authority       string      `mapstructure:"authority"`  // 有权修改策略的管理员
	ProgramID       string      `mapstructure:"program_id"` // 程序金库派生地址的根
	TokenMint       string      `mapstructure:"token_mint"`
	TokenDecimals   int         `mapstructure:"token_decimals"`
	MaxRetryCount   int         `mapstructure:"max_retry_count"`
	LockTTLSeconds  int         `mapstructure:"lock_ttl_seconds"`
	LockRetryMillis int         `mapstructure:"lock_retry_millis"`
	LockMaxRetries  int         `mapstructure:"lock_max_retries"`
	Vaults          VaultConfig `mapstructure:"vaults"`
}

// VaultConfig 程序金库名称
// 质押奖励与转盘奖励从哪个金库出账属于部署配置
type VaultConfig struct {
	StakeVault     string `mapstructure:"stake_vault"`
	RewardsPool    string `mapstructure:"rewards_pool"`
	StakingSubPool string `mapstructure:"staking_sub_pool"`
	SpinSubPool    string `mapstructure:"spin_sub_pool"`
	ReferralPool   string `mapstructure:"referral_sub_pool"`
	ReservePool    string `mapstructure:"reserve_sub_pool"`
	StakingPayout  string `mapstructure:"staking_payout"`
	SpinPayout     string `mapstructure:"spin_payout"`
}

type StakingConfig struct {
	BaseAPRBps          uint16    `mapstructure:"base_apr_bps"`
	DailyYieldBps       uint16    `mapstructure:"daily_yield_bps"`
	PenaltyTiersBps     [4]uint16 `mapstructure:"penalty_tiers_bps"`
	PenaltyThresholdsHr [4]uint32 `mapstructure:"penalty_thresholds_hours"`
}

type SpinConfig struct {
	BaseYieldMinBps     uint16 `mapstructure:"base_yield_min_bps"`
	BaseYieldMaxBps     uint16 `mapstructure:"base_yield_max_bps"`
	MoonshotYieldMinBps uint16 `mapstructure:"moonshot_yield_min_bps"`
	MoonshotYieldMaxBps uint16 `mapstructure:"moonshot_yield_max_bps"`
	MoonshotProbability uint8  `mapstructure:"moonshot_probability"`
	FallbackYieldBps    uint16 `mapstructure:"fallback_yield_bps"`
	CooldownSeconds     uint32 `mapstructure:"cooldown_seconds"`
	LuckyCharmUnitCost  uint64 `mapstructure:"lucky_charm_unit_cost"` // 每次转盘，整币
	AmplifierUnitCost   uint64 `mapstructure:"amplifier_unit_cost"`   // 每小时，整币
	ShieldUnitCost      uint64 `mapstructure:"shield_unit_cost"`      // 每次转盘，整币
}

type PoolConfig struct {
	StakingBps                  uint16 `mapstructure:"staking_bps"`
	SpinBps                     uint16 `mapstructure:"spin_bps"`
	ReferralBps                 uint16 `mapstructure:"referral_bps"`
	ReserveBps                  uint16 `mapstructure:"reserve_bps"`
	DistributionIntervalSeconds int64  `mapstructure:"distribution_interval_seconds"`
}

type ScheduleConfig struct {
	DistributionCron         string `mapstructure:"distribution_cron"`
	ReconcileIntervalSeconds int    `mapstructure:"reconcile_interval_seconds"`
	OutboxIntervalMillis     int    `mapstructure:"outbox_interval_millis"`
}

var GlobalConfig *Config

// SetDefaults 注册默认值，最小配置文件即可启动
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.log_level", "warn")
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 5)

	v.SetDefault("kafka.topic.stake_event", "yield_stake_event")
	v.SetDefault("kafka.topic.spin_event", "yield_spin_event")
	v.SetDefault("kafka.topic.pool_event", "yield_pool_event")

	v.SetDefault("business.program_id", "chad-empire")
	v.SetDefault("business.token_mint", "CHAD")
	v.SetDefault("business.token_decimals", 9)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("business.lock_retry_millis", 100)
	v.SetDefault("business.lock_max_retries", 30)
	v.SetDefault("business.vaults.stake_vault", "stake_vault")
	v.SetDefault("business.vaults.rewards_pool", "rewards_pool")
	v.SetDefault("business.vaults.staking_sub_pool", "staking_sub_pool")
	v.SetDefault("business.vaults.spin_sub_pool", "spin_sub_pool")
	v.SetDefault("business.vaults.referral_sub_pool", "referral_sub_pool")
	v.SetDefault("business.vaults.reserve_sub_pool", "reserve_sub_pool")
	v.SetDefault("business.vaults.staking_payout", "staking_sub_pool")
	v.SetDefault("business.vaults.spin_payout", "spin_sub_pool")

	v.SetDefault("staking.base_apr_bps", 50)
	v.SetDefault("staking.daily_yield_bps", 50)
	v.SetDefault("staking.penalty_tiers_bps", []uint16{5000, 3500, 1500, 0})
	v.SetDefault("staking.penalty_thresholds_hours", []uint32{168, 336, 720, 744})

	v.SetDefault("spin.base_yield_min_bps", 10)
	v.SetDefault("spin.base_yield_max_bps", 50)
	v.SetDefault("spin.moonshot_yield_min_bps", 100)
	v.SetDefault("spin.moonshot_yield_max_bps", 300)
	v.SetDefault("spin.moonshot_probability", 20)
	v.SetDefault("spin.fallback_yield_bps", 50)
	v.SetDefault("spin.cooldown_seconds", 86400)
	v.SetDefault("spin.lucky_charm_unit_cost", 1000)
	v.SetDefault("spin.amplifier_unit_cost", 500)
	v.SetDefault("spin.shield_unit_cost", 2000)

	v.SetDefault("pool.staking_bps", 5000)
	v.SetDefault("pool.spin_bps", 3000)
	v.SetDefault("pool.referral_bps", 1500)
	v.SetDefault("pool.reserve_bps", 500)
	v.SetDefault("pool.distribution_interval_seconds", 86400)

	v.SetDefault("schedule.distribution_cron", "0 */10 * * * *")
	v.SetDefault("schedule.reconcile_interval_seconds", 300)
	v.SetDefault("schedule.outbox_interval_millis", 100)
}

// Load 读取并解析配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("YIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	GlobalConfig = cfg
	return cfg
}
