package handler

import (
	"context"
	"errors"
	"strconv"

	"yieldengine/internal/model"
	"yieldengine/internal/repository"
	"yieldengine/internal/service"
	"yieldengine/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	stakingService *service.StakingService
	spinService    *service.SpinService
	poolService    *service.PoolService
	vaultService   *service.VaultService
}

func NewHandler(svcs *service.Services) *Handler {
	return &Handler{
		stakingService: svcs.Staking,
		spinService:    svcs.Spin,
		poolService:    svcs.Pool,
		vaultService:   svcs.Vault,
	}
}

// fail 把业务错误类型映射为响应码
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrNotYetEligible):
		response.BusinessError(c, response.CodeNotYetEligible, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, service.ErrNothingToClaim):
		response.BusinessError(c, response.CodeNothingToClaim, err.Error())
	case errors.Is(err, service.ErrSystemBusy):
		response.BusinessError(c, response.CodeSystemBusy, err.Error())
	case errors.Is(err, repository.ErrStakeNotFound):
		response.BusinessError(c, response.CodeStakeNotFound, err.Error())
	case errors.Is(err, repository.ErrVaultNotFound):
		response.BusinessError(c, response.CodeVaultNotFound, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// principal 请求头中的调用方身份，缺失时直接返回 401
func principal(c *gin.Context) (string, bool) {
	p := c.GetString(ctxPrincipal)
	if p == "" {
		response.Unauthorized(c, "缺少 "+HeaderPrincipal+" 请求头")
		return "", false
	}
	return p, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

// ============================================================
// 金库相关接口
// ============================================================

// GetBalance 查询金库余额
// GET /api/v1/vault/balance?owner=xxx 或 ?name=stake_vault
func (h *Handler) GetBalance(c *gin.Context) {
	name := c.Query("name")
	if owner := c.Query("owner"); owner != "" {
		name = model.ParticipantVaultName(owner)
	}
	if name == "" {
		response.ParamError(c, "owner 或 name 参数不能为空")
		return
	}

	vault, err := h.vaultService.GetVault(c.Request.Context(), name)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"name":    vault.Name,
		"kind":    vault.Kind,
		"balance": vault.Balance,
	})
}

// ListEntries 金库流水
// GET /api/v1/vault/entries?name=xxx&page=1&page_size=10
func (h *Handler) ListEntries(c *gin.Context) {
	name := c.Query("name")
	if owner := c.Query("owner"); owner != "" {
		name = model.ParticipantVaultName(owner)
	}
	if name == "" {
		response.ParamError(c, "owner 或 name 参数不能为空")
		return
	}
	page, pageSize := pagination(c)

	entries, total, err := h.vaultService.ListEntries(c.Request.Context(), name, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}

	response.Page(c, entries, total, page, pageSize)
}

// ListProgramVaults 程序金库列表
// GET /api/v1/vault/program
func (h *Handler) ListProgramVaults(c *gin.Context) {
	vaults, err := h.vaultService.ListProgramVaults(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, vaults)
}

// GetTransfer 按划转号查询流水
// GET /api/v1/vault/transfer?transfer_no=xxx
func (h *Handler) GetTransfer(c *gin.Context) {
	entries, err := h.vaultService.GetTransfer(c.Request.Context(), c.Query("transfer_no"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, entries)
}

type CreditRequest struct {
	Owner  string `json:"owner" binding:"required"`
	Amount uint64 `json:"amount" binding:"required"`
}

// Credit 管理员向参与者入账
// POST /api/v1/vault/credit
func (h *Handler) Credit(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	var req CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	vault, err := h.vaultService.Credit(c.Request.Context(), caller, req.Owner, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"name":    vault.Name,
		"balance": vault.Balance,
	})
}

type FundRequest struct {
	Vault  string `json:"vault" binding:"required"`
	Amount uint64 `json:"amount" binding:"required"`
}

// Fund 管理员向程序金库注资
// POST /api/v1/vault/fund
func (h *Handler) Fund(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	var req FundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	vault, err := h.vaultService.Fund(c.Request.Context(), caller, req.Vault, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"name":    vault.Name,
		"balance": vault.Balance,
	})
}

// ============================================================
// 质押相关接口
// ============================================================

type AmountRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

// Deposit 存入质押
// POST /api/v1/stake/deposit
func (h *Handler) Deposit(c *gin.Context) {
	owner, ok := principal(c)
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.stakingService.Deposit(c.Request.Context(), owner, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, record)
}

// Withdraw 提取质押
// POST /api/v1/stake/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	owner, ok := principal(c)
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.stakingService.Withdraw(c.Request.Context(), owner, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, result)
}

// ClaimRewards 领取质押收益
// POST /api/v1/stake/claim
func (h *Handler) ClaimRewards(c *gin.Context) {
	owner, ok := principal(c)
	if !ok {
		return
	}

	rewards, err := h.stakingService.ClaimRewards(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"owner":   owner,
		"rewards": rewards,
	})
}

// GetStake 质押详情
// GET /api/v1/stake/detail?owner=xxx
func (h *Handler) GetStake(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		response.ParamError(c, "owner 参数不能为空")
		return
	}

	view, err := h.stakingService.GetStake(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, view)
}

// GetStakingPolicy 质押参数
// GET /api/v1/stake/policy
func (h *Handler) GetStakingPolicy(c *gin.Context) {
	policy, err := h.stakingService.GetPolicy(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, policy)
}

type UpdateStakingPolicyRequest struct {
	BaseAPRBps    uint16  `json:"base_apr_bps"`
	DailyYieldBps *uint16 `json:"daily_yield_bps"`
}

// UpdateStakingPolicy 修改利率
// POST /api/v1/stake/policy
func (h *Handler) UpdateStakingPolicy(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	var req UpdateStakingPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	policy, err := h.stakingService.UpdatePolicy(c.Request.Context(), caller, req.BaseAPRBps, req.DailyYieldBps)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, policy)
}

type PenaltyScheduleRequest struct {
	TiersBps       [4]uint16 `json:"tiers_bps"`
	ThresholdHours [4]uint32 `json:"threshold_hours"`
}

// ReplacePenaltySchedule 替换罚金档位
// POST /api/v1/stake/penalty-schedule
func (h *Handler) ReplacePenaltySchedule(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	var req PenaltyScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	policy, err := h.stakingService.ReplacePenaltySchedule(c.Request.Context(), caller, req.TiersBps, req.ThresholdHours)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, policy)
}

// ============================================================
// 转盘相关接口
// ============================================================

// Spin 转盘
// POST /api/v1/spin/execute
func (h *Handler) Spin(c *gin.Context) {
	owner, ok := principal(c)
	if !ok {
		return
	}

	result, err := h.spinService.Spin(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, result)
}

// ClaimFallbackYield 领取保底收益
// POST /api/v1/spin/fallback
func (h *Handler) ClaimFallbackYield(c *gin.Context) {
	owner, ok := principal(c)
	if !ok {
		return
	}

	result, err := h.spinService.ClaimFallbackYield(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, result)
}

type BoosterRequest struct {
	Units uint8 `json:"units" binding:"required"`
}

// ActivateLuckyCharm 购买幸运符
// POST /api/v1/spin/booster/lucky-charm
func (h *Handler) ActivateLuckyCharm(c *gin.Context) {
	h.activateBooster(c, h.spinService.ActivateLuckyCharm)
}

// ActivateYieldAmplifier 购买放大器，units 为小时数
// POST /api/v1/spin/booster/amplifier
func (h *Handler) ActivateYieldAmplifier(c *gin.Context) {
	h.activateBooster(c, h.spinService.ActivateYieldAmplifier)
}

// ActivateChadShield 购买护盾
// POST /api/v1/spin/booster/shield
func (h *Handler) ActivateChadShield(c *gin.Context) {
	h.activateBooster(c, h.spinService.ActivateChadShield)
}

func (h *Handler) activateBooster(c *gin.Context, activate func(ctx context.Context, owner string, units uint8) (*model.SpinProfile, error)) {
	owner, ok := principal(c)
	if !ok {
		return
	}
	var req BoosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	profile, err := activate(c.Request.Context(), owner, req.Units)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, profile)
}

// GetSpinProfile 转盘档案
// GET /api/v1/spin/profile?owner=xxx
func (h *Handler) GetSpinProfile(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		response.ParamError(c, "owner 参数不能为空")
		return
	}

	profile, err := h.spinService.GetSpinProfile(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, profile)
}

// ListSpinRecords 转盘记录
// GET /api/v1/spin/records?owner=xxx&page=1&page_size=10
func (h *Handler) ListSpinRecords(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		response.ParamError(c, "owner 参数不能为空")
		return
	}
	page, pageSize := pagination(c)

	records, total, err := h.spinService.ListSpinRecords(c.Request.Context(), owner, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}

	response.Page(c, records, total, page, pageSize)
}

// GetSpinPolicy 转盘参数
// GET /api/v1/spin/policy
func (h *Handler) GetSpinPolicy(c *gin.Context) {
	policy, err := h.spinService.GetPolicy(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, policy)
}

// UpdateSpinPolicy 部分更新转盘参数
// POST /api/v1/spin/policy
func (h *Handler) UpdateSpinPolicy(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	var req service.SpinPolicyUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	policy, err := h.spinService.UpdateSpinPolicy(c.Request.Context(), caller, &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, policy)
}

// ============================================================
// 奖励池相关接口
// ============================================================

// Distribute 触发一次分配，不校验调用方
// POST /api/v1/pool/distribute
func (h *Handler) Distribute(c *gin.Context) {
	history, err := h.poolService.Distribute(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, history)
}

type AllocationsRequest struct {
	StakingBps  uint16 `json:"staking_bps"`
	SpinBps     uint16 `json:"spin_bps"`
	ReferralBps uint16 `json:"referral_bps"`
	ReserveBps  uint16 `json:"reserve_bps"`
}

// UpdateAllocations 修改分配比例
// POST /api/v1/pool/allocations
func (h *Handler) UpdateAllocations(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	var req AllocationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	policy, err := h.poolService.UpdateAllocations(c.Request.Context(), caller,
		[4]uint16{req.StakingBps, req.SpinBps, req.ReferralBps, req.ReserveBps})
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, policy)
}

type EmergencyWithdrawRequest struct {
	Amount      uint64 `json:"amount"`
	Destination string `json:"destination" binding:"required"`
}

// EmergencyWithdraw 从储备子池紧急提取
// POST /api/v1/pool/emergency-withdraw
func (h *Handler) EmergencyWithdraw(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	var req EmergencyWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	transferNo, err := h.poolService.EmergencyWithdraw(c.Request.Context(), caller, req.Amount, req.Destination)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"transfer_no": transferNo,
		"amount":      req.Amount,
		"destination": req.Destination,
	})
}

// GetPool 奖励池详情
// GET /api/v1/pool/detail
func (h *Handler) GetPool(c *gin.Context) {
	view, err := h.poolService.GetPool(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, view)
}

// ListDistributions 分配记录
// GET /api/v1/pool/distributions?page=1&page_size=10
func (h *Handler) ListDistributions(c *gin.Context) {
	page, pageSize := pagination(c)

	histories, total, err := h.poolService.ListDistributions(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}

	response.Page(c, histories, total, page, pageSize)
}
