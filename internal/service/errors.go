package service

import (
	"errors"
	"fmt"

	"yieldengine/internal/infrastructure/lock"
	"yieldengine/internal/ledger"
	"yieldengine/internal/repository"
)

// 业务错误类型，具体错误用 fmt.Errorf("%w: ...") 包装其中之一
var (
	ErrInvalidInput        = errors.New("参数不合法")
	ErrUnauthorized        = errors.New("无权执行该操作")
	ErrNotYetEligible      = errors.New("尚未到可执行时间")
	ErrInsufficientBalance = errors.New("余额不足")
	ErrNothingToClaim      = errors.New("没有可领取的收益")
	ErrSystemBusy          = errors.New("系统繁忙，请稍后重试")
)

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notYetEligible(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotYetEligible, fmt.Sprintf(format, args...))
}

func insufficient(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInsufficientBalance, fmt.Sprintf(format, args...))
}

func nothingToClaim(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNothingToClaim, fmt.Sprintf(format, args...))
}

func checkAuthority(expected, caller string) error {
	if caller == "" || caller != expected {
		return fmt.Errorf("%w: caller=%s", ErrUnauthorized, caller)
	}
	return nil
}

// transferError 把账本和仓储层的错误归入业务错误类型
func transferError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
	case errors.Is(err, ledger.ErrUnauthorized):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case errors.Is(err, repository.ErrOptimisticLock):
		return fmt.Errorf("%w: %w", ErrSystemBusy, err)
	}
	return err
}

func lockError(err error) error {
	if errors.Is(err, lock.ErrLockFailed) {
		return fmt.Errorf("%w: %w", ErrSystemBusy, err)
	}
	return fmt.Errorf("获取锁失败: %w", err)
}

// Kind 返回错误所属的业务类型，未归类时返回 nil
func Kind(err error) error {
	for _, kind := range []error{
		ErrInvalidInput,
		ErrUnauthorized,
		ErrNotYetEligible,
		ErrInsufficientBalance,
		ErrNothingToClaim,
		ErrSystemBusy,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
