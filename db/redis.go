// api/db/redis.go
package db

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	logger "github.com/piwdev/member-management-kiro-sub000/logging"
	"github.com/piwdev/member-management-kiro-sub000/model"
	pdpmodel "github.com/piwdev/member-management-kiro-sub000/pdp/model"
)

var (
	RedisClient   *redis.Client
	encryptionKey []byte
)

const summaryEpochKey = "summary:epoch"

func InitRedis() error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:         viper.GetString("redis.addr"),
		Password:     viper.GetString("redis.password"),
		DB:           viper.GetInt("redis.db"),
		DialTimeout:  viper.GetDuration("redis.dialTimeout"),
		ReadTimeout:  viper.GetDuration("redis.readTimeout"),
		WriteTimeout: viper.GetDuration("redis.writeTimeout"),
		PoolSize:     viper.GetInt("redis.poolSize"),
		PoolTimeout:  viper.GetDuration("redis.poolTimeout"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := RedisClient.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	encryptionKey = []byte(viper.GetString("redis.encryptionKey"))
	if len(encryptionKey) != 32 {
		return fmt.Errorf("invalid encryption key length: must be 32 bytes")
	}

	logger.Info("Successfully connected to Redis")
	return nil
}

func CloseRedis() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			logger.Error("Error closing Redis connection", zap.Error(err))
		}
	}
}

func encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func CachePolicy(ctx context.Context, policy *model.PermissionPolicy) error {
	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	encryptedPolicy, err := encrypt(policyJSON)
	if err != nil {
		return fmt.Errorf("failed to encrypt policy: %w", err)
	}

	key := fmt.Sprintf("policy:%s", policy.ID)
	defaultTTL := viper.GetDuration("redis.defaultCacheTTL")
	err = RedisClient.Set(ctx, key, base64.StdEncoding.EncodeToString(encryptedPolicy), defaultTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to cache policy: %w", err)
	}

	logger.Debug("Policy cached successfully", zap.String("policyID", policy.ID))
	return nil
}

func GetCachedPolicy(ctx context.Context, policyID string) (*model.PermissionPolicy, error) {
	key := fmt.Sprintf("policy:%s", policyID)
	encryptedPolicyStr, err := RedisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		logger.Debug("Policy not found in cache", zap.String("policyID", policyID))
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get policy from cache: %w", err)
	}

	encryptedPolicy, err := base64.StdEncoding.DecodeString(encryptedPolicyStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}

	policyJSON, err := decrypt(encryptedPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt policy: %w", err)
	}

	var policy model.PermissionPolicy
	err = json.Unmarshal(policyJSON, &policy)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
	}

	logger.Debug("Policy retrieved from cache", zap.String("policyID", policyID))
	return &policy, nil
}

func DeleteCachedPolicy(ctx context.Context, policyID string) error {
	key := fmt.Sprintf("policy:%s", policyID)
	err := RedisClient.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete policy from cache: %w", err)
	}
	logger.Debug("Policy deleted from cache", zap.String("policyID", policyID))
	return nil
}

func CacheOverride(ctx context.Context, override *model.PermissionOverride) error {
	overrideJSON, err := json.Marshal(override)
	if err != nil {
		return fmt.Errorf("failed to marshal override: %w", err)
	}

	key := fmt.Sprintf("override:%s", override.ID)
	defaultTTL := viper.GetDuration("redis.defaultCacheTTL")
	err = RedisClient.Set(ctx, key, overrideJSON, defaultTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to cache override: %w", err)
	}

	logger.Debug("Override cached successfully", zap.String("overrideID", override.ID))
	return nil
}

func DeleteCachedOverride(ctx context.Context, overrideID string) error {
	key := fmt.Sprintf("override:%s", overrideID)
	err := RedisClient.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete override from cache: %w", err)
	}
	logger.Debug("Override deleted from cache", zap.String("overrideID", overrideID))
	return nil
}

func GetCachedOverride(ctx context.Context, overrideID string) (*model.PermissionOverride, error) {
	key := fmt.Sprintf("override:%s", overrideID)
	overrideJSON, err := RedisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		logger.Debug("Override not found in cache", zap.String("overrideID", overrideID))
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get override from cache: %w", err)
	}

	var override model.PermissionOverride
	err = json.Unmarshal([]byte(overrideJSON), &override)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal override: %w", err)
	}

	logger.Debug("Override retrieved from cache", zap.String("overrideID", overrideID))
	return &override, nil
}

// Summary cache keys carry an epoch segment. Any policy or override
// mutation bumps the epoch, which orphans every cached summary at once
// instead of hunting down affected employees.

func summaryEpoch(ctx context.Context) (string, error) {
	epoch, err := RedisClient.Get(ctx, summaryEpochKey).Result()
	if err == redis.Nil {
		return "0", nil
	} else if err != nil {
		return "", fmt.Errorf("failed to read summary epoch: %w", err)
	}
	return epoch, nil
}

func BumpSummaryEpoch(ctx context.Context) error {
	if err := RedisClient.Incr(ctx, summaryEpochKey).Err(); err != nil {
		return fmt.Errorf("failed to bump summary epoch: %w", err)
	}
	logger.Debug("Summary epoch bumped")
	return nil
}

func summaryKey(epoch, employeeID string, asOf time.Time) string {
	return fmt.Sprintf("summary:%s:%s:%s", epoch, employeeID, model.Day(asOf).Format("2006-01-02"))
}

func CacheSummary(ctx context.Context, summary *pdpmodel.PermissionSummary) error {
	epoch, err := summaryEpoch(ctx)
	if err != nil {
		return err
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	key := summaryKey(epoch, summary.EmployeeID, summary.AsOf)
	defaultTTL := viper.GetDuration("redis.defaultCacheTTL")
	err = RedisClient.Set(ctx, key, summaryJSON, defaultTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to cache summary: %w", err)
	}

	logger.Debug("Summary cached successfully", zap.String("employeeID", summary.EmployeeID))
	return nil
}

func GetCachedSummary(ctx context.Context, employeeID string, asOf time.Time) (*pdpmodel.PermissionSummary, error) {
	epoch, err := summaryEpoch(ctx)
	if err != nil {
		return nil, err
	}

	key := summaryKey(epoch, employeeID, asOf)
	summaryJSON, err := RedisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		logger.Debug("Summary not found in cache", zap.String("employeeID", employeeID))
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get summary from cache: %w", err)
	}

	var summary pdpmodel.PermissionSummary
	err = json.Unmarshal([]byte(summaryJSON), &summary)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}

	logger.Debug("Summary retrieved from cache", zap.String("employeeID", employeeID))
	return &summary, nil
}

func RateLimit(ctx context.Context, key string, limit int, per time.Duration) (bool, error) {
	pipe := RedisClient.Pipeline()
	now := time.Now().UnixNano()
	key = fmt.Sprintf("ratelimit:%s", key)

	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now-(per.Nanoseconds())))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: now})
	pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, per)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to execute rate limit commands: %w", err)
	}

	count := cmds[2].(*redis.IntCmd).Val()
	allowed := count <= int64(limit)
	logger.Debug("Rate limit check",
		zap.String("key", key),
		zap.Int64("count", count),
		zap.Int("limit", limit),
		zap.Bool("allowed", allowed))
	return allowed, nil
}

func LockResource(ctx context.Context, resourceName string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resourceName)
	locked, err := RedisClient.SetNX(ctx, key, "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	logger.Debug("Lock acquisition attempt",
		zap.String("resource", resourceName),
		zap.Bool("locked", locked))
	return locked, nil
}

func UnlockResource(ctx context.Context, resourceName string) error {
	key := fmt.Sprintf("lock:%s", resourceName)
	err := RedisClient.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	logger.Debug("Lock released", zap.String("resource", resourceName))
	return nil
}
