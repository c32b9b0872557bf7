package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	redeemflowdomain "github.com/seatwise/seatwise/internal/redeemflow/domain"
	redemptiondomain "github.com/seatwise/seatwise/internal/redemption/domain"
	seatpooldomain "github.com/seatwise/seatwise/internal/seatpool/domain"
	"go.uber.org/zap"
)

type verifyRequest struct {
	Code string `json:"code"`
}

func (s *Server) VerifyCode(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.redeemSvc.Verify(c.Request.Context(), strings.TrimSpace(req.Code))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type redeemRequest struct {
	Email  string `json:"email"`
	Code   string `json:"code"`
	PoolID string `json:"pool_id"`
}

func (s *Server) Redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var poolID *snowflake.ID
	if strings.TrimSpace(req.PoolID) != "" {
		parsed, err := parseID(req.PoolID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		poolID = &parsed
	}

	result, err := s.redeemSvc.Redeem(c.Request.Context(), redeemflowdomain.RedeemRequest{
		Email:  req.Email,
		Code:   req.Code,
		PoolID: poolID,
	})
	if err != nil {
		s.log.Error("redeem failed", zap.Error(err))
		AbortWithError(c, err)
		return
	}
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"data": result})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListPools(c *gin.Context) {
	pools, err := s.poolSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pools})
}

func (s *Server) GetPool(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	pool, err := s.poolSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pool})
}

type updatePoolRequest struct {
	TeamName     *string `json:"team_name"`
	SeatCapacity *int    `json:"seat_capacity"`
	Status       *string `json:"status"`
	AccessToken  *string `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
	SessionToken *string `json:"session_token"`
}

func (s *Server) UpdatePool(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req updatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var status *seatpooldomain.Status
	if req.Status != nil {
		parsed := seatpooldomain.Status(*req.Status)
		switch parsed {
		case seatpooldomain.StatusActive, seatpooldomain.StatusFull,
			seatpooldomain.StatusExpired, seatpooldomain.StatusError,
			seatpooldomain.StatusBanned:
			status = &parsed
		default:
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	pool, err := s.poolSvc.Update(c.Request.Context(), seatpooldomain.UpdatePoolRequest{
		PoolID:       id,
		TeamName:     req.TeamName,
		SeatCapacity: req.SeatCapacity,
		Status:       status,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		SessionToken: req.SessionToken,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pool})
}

type addMemberRequest struct {
	Email      string `json:"email"`
	LegacySeed bool   `json:"legacy_seed"`
	LegacyDays *int   `json:"legacy_days"`
	ManualTag  string `json:"manual_tag"`
}

func (s *Server) AddPoolMember(c *gin.Context) {
	poolID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.poolSvc.AddMember(c.Request.Context(), seatpooldomain.AddMemberRequest{
		PoolID:     poolID,
		Email:      req.Email,
		LegacySeed: req.LegacySeed,
		LegacyDays: req.LegacyDays,
		ManualTag:  req.ManualTag,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"invited": true}})
}

func (s *Server) ListCodes(c *gin.Context) {
	codes, err := s.codeSvc.ListCodes(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": codes})
}

type generateCodesRequest struct {
	Code         string `json:"code"`
	Count        int    `json:"count"`
	HasWarranty  bool   `json:"has_warranty"`
	WarrantyDays int    `json:"warranty_days"`
	ExpiresAt    string `json:"expires_at"`
}

func (s *Server) GenerateCodes(c *gin.Context) {
	var req generateCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}

	var expiresAt *time.Time
	if strings.TrimSpace(req.ExpiresAt) != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		expiresAt = &parsed
	}

	codes, err := s.codeSvc.GenerateBatch(c.Request.Context(), redemptiondomain.GenerateRequest{
		Code:         req.Code,
		HasWarranty:  req.HasWarranty,
		WarrantyDays: req.WarrantyDays,
		ExpiresAt:    expiresAt,
	}, req.Count)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": codes})
}

func (s *Server) WithdrawRecord(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.codeSvc.WithdrawRecord(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"withdrawn": true}})
}

func (s *Server) ListReminders(c *gin.Context) {
	reminders, err := s.reminderSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reminders})
}

func (s *Server) SendReminder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.reminderSvc.SendReminder(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"sent": true}})
}

func (s *Server) GetLifecycle(c *gin.Context) {
	lifecycle, err := s.lifecycleSvc.Get(c.Request.Context(), c.Param("email"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": lifecycle})
}

func parseID(raw string) (snowflake.ID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return snowflake.ID(value), nil
}
