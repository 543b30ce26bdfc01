package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/nao1215/powerboard/internal/config"
	"github.com/nao1215/powerboard/internal/model"
	"github.com/nao1215/powerboard/internal/store"
	"github.com/nao1215/powerboard/pkg/middleware"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// notes は通知レコードのストア。
	notes *store.NotificationStore
	// domain はユーザー・タスク・プロジェクトの参照に使うストア。
	domain *store.DomainStore
	// notifier は通知の保存と配信を行う。
	notifier *Notifier
	logger   zerolog.Logger
}

// NewServer は新しい通知サーバーを生成する。
// dbはマイグレーション済みである必要がある。
func NewServer(cfg *config.Config, db *sqlx.DB, deliverer Deliverer, logger zerolog.Logger) *Server {
	notes := store.NewNotificationStore(db)
	domain := store.NewDomainStore(db)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router:   router,
		notes:    notes,
		domain:   domain,
		notifier: NewNotifier(notes, domain, deliverer, logger),
		logger:   logger,
	}
	s.setupRoutes(cfg.JWTSecret, cfg.GatewayInternalSecret)

	return s
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Notifier はサーバーが使うNotifierを返す。同一プロセスのプロデューサーが使う。
func (s *Server) Notifier() *Notifier {
	return s.notifier
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(jwtSecret, internalSecret string) {
	api := s.router.Group("/api/v1")
	{
		notifications := api.Group("/notifications")
		notifications.Use(middleware.JWTAuth(jwtSecret))
		{
			// 通知一覧取得
			notifications.GET("", s.handleList())
			// 通知を既読にする
			notifications.POST("/:id/read", s.handleMarkAsRead())
			// 全通知を既読にする
			notifications.PUT("/read-all", s.handleMarkAllAsRead())
		}

		// 別プロセスのプロデューサーから呼び出される内部API
		internal := api.Group("/internal")
		internal.Use(middleware.InternalSecret(internalSecret))
		{
			internal.POST("/notify", s.handleNotify())
			internal.POST("/events/:kind", s.handleEvent())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
}

// currentUser は認証済みの受信者識別子からユーザーを引く。
// ユーザーが未登録なら ok=false を返す。
func (s *Server) currentUser(c *gin.Context) (model.User, bool, error) {
	authID := middleware.GetAuthID(c)
	if authID == "" {
		return model.User{}, false, nil
	}
	user, err := s.domain.UserByAuthID(c.Request.Context(), authID)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	return user, true, nil
}

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Read は通知の既読状態。
	Read bool `json:"read"`
	// CreatedAt は通知の作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// toNotificationResponses は通知のスライスをJSONレスポンスのスライスに変換する。
func toNotificationResponses(notifications []model.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, notificationResponse{
			ID:        n.ID,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return responses
}

// handleList は認証済みユーザーの通知一覧を新しい順に返すハンドラ。
// unread_only=true の場合は未読のみを返し、返した通知を既読にする。
// レスポンスの read は既読化する前の値のまま返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		unreadOnly := false
		if v := c.Query("unread_only"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unread_only が不正です"})
				return
			}
			unreadOnly = b
		}

		user, ok, err := s.currentUser(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			s.logger.Error().Err(err).Msg("ユーザー取得エラー")
			return
		}
		if !ok {
			c.JSON(http.StatusOK, []notificationResponse{})
			return
		}

		notifications, err := s.notes.List(c.Request.Context(), user.ID, unreadOnly)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			s.logger.Error().Err(err).Msg("通知一覧取得エラー")
			return
		}

		if unreadOnly && len(notifications) > 0 {
			ids := make([]string, 0, len(notifications))
			for _, n := range notifications {
				ids = append(ids, n.ID)
			}
			if err := s.notes.MarkReadByIDs(c.Request.Context(), user.ID, ids); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
				s.logger.Error().Err(err).Msg("通知一括既読処理エラー")
				return
			}
		}

		c.JSON(http.StatusOK, toNotificationResponses(notifications))
	}
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
// 他人の通知や存在しない通知は404になる。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok, err := s.currentUser(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			s.logger.Error().Err(err).Msg("ユーザー取得エラー")
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}

		err = s.notes.MarkRead(c.Request.Context(), c.Param("id"), user.ID)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			s.logger.Error().Err(err).Msg("通知既読処理エラー")
			return
		}

		c.JSON(http.StatusOK, gin.H{"detail": "marked as read"})
	}
}

// handleMarkAllAsRead は認証済みユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok, err := s.currentUser(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			s.logger.Error().Err(err).Msg("ユーザー取得エラー")
			return
		}
		if !ok {
			c.JSON(http.StatusOK, gin.H{"updated": 0})
			return
		}

		updated, err := s.notes.MarkAllRead(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			s.logger.Error().Err(err).Msg("全通知既読処理エラー")
			return
		}

		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

// notifyRequest は内部通知リクエストのJSON構造。
type notifyRequest struct {
	// UserID は通知先ユーザーの内部ID。
	UserID int64 `json:"user_id" binding:"required"`
	// Message は通知メッセージ。
	Message string `json:"message" binding:"required"`
}

// handleNotify は任意の本文で1件通知するハンドラ。
func (s *Server) handleNotify() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		user, err := s.domain.UserByID(c.Request.Context(), req.UserID)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			s.logger.Error().Err(err).Msg("ユーザー取得エラー")
			return
		}

		if err := s.notifier.Notify(c.Request.Context(), user, req.Message); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
			s.logger.Error().Err(err).Msg("通知作成エラー")
			return
		}

		c.JSON(http.StatusCreated, gin.H{"message": "通知を送信しました"})
	}
}

// eventRequest は内部イベントリクエストのJSON構造。
// 種類ごとに必要な項目だけを使う。
type eventRequest struct {
	// UserID は対象ユーザーの内部ID。
	UserID int64 `json:"user_id"`
	// ActorID は操作したユーザーの内部ID（コメント投稿者、追加した人）。
	ActorID int64 `json:"actor_id"`
	// TaskID は対象タスクのID。
	TaskID int64 `json:"task_id"`
	// ProjectID は対象プロジェクトのID。
	ProjectID int64 `json:"project_id"`
	// BigTaskTitle は対象ビッグタスクのタイトル。
	BigTaskTitle string `json:"big_task_title"`
	// OldStatus は変更前のタスク状態。
	OldStatus model.TaskStatus `json:"old_status"`
}

// errBadEvent はイベントの必須項目が欠けていることを表す。
var errBadEvent = errors.New("イベントの必須項目が不足しています")

// handleEvent は業務イベントを受け取り、対応するラッパーで通知するハンドラ。
func (s *Server) handleEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req eventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		err := s.dispatchEvent(c.Request.Context(), c.Param("kind"), req)
		switch {
		case err == nil:
			c.JSON(http.StatusAccepted, gin.H{"message": "イベントを受け付けました"})
		case errors.Is(err, errUnknownEvent):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, errBadEvent):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "対象が見つかりません"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
			s.logger.Error().Err(err).Str("kind", c.Param("kind")).Msg("イベント処理エラー")
		}
	}
}

// errUnknownEvent は未知のイベント種別を表す。
var errUnknownEvent = errors.New("未知のイベント種別です")

// dispatchEvent はイベント種別に応じて参照を解決し、通知を作成する。
func (s *Server) dispatchEvent(ctx context.Context, kind string, req eventRequest) error {
	switch kind {
	case "task_assigned":
		task, err := s.requireTask(ctx, req.TaskID)
		if err != nil {
			return err
		}
		if !task.AssigneeID.Valid {
			return fmt.Errorf("%w: タスクに担当者がいません", errBadEvent)
		}
		assignee, err := s.domain.UserByID(ctx, task.AssigneeID.Int64)
		if err != nil {
			return err
		}
		return s.notifier.TaskAssigned(ctx, task, assignee)

	case "comment_added":
		task, err := s.requireTask(ctx, req.TaskID)
		if err != nil {
			return err
		}
		commenter, err := s.requireUser(ctx, req.ActorID)
		if err != nil {
			return err
		}
		return s.notifier.CommentAdded(ctx, task, commenter)

	case "status_changed":
		task, err := s.requireTask(ctx, req.TaskID)
		if err != nil {
			return err
		}
		if req.OldStatus == "" {
			return fmt.Errorf("%w: old_status", errBadEvent)
		}
		return s.notifier.TaskStatusChanged(ctx, task, req.OldStatus)

	case "added_to_project":
		project, user, err := s.requireProjectAndUser(ctx, req)
		if err != nil {
			return err
		}
		by, err := s.requireUser(ctx, req.ActorID)
		if err != nil {
			return err
		}
		return s.notifier.AddedToProject(ctx, project, user, by)

	case "removed_from_project":
		project, user, err := s.requireProjectAndUser(ctx, req)
		if err != nil {
			return err
		}
		return s.notifier.RemovedFromProject(ctx, project, user)

	case "promoted_role":
		project, user, err := s.requireProjectAndUser(ctx, req)
		if err != nil {
			return err
		}
		return s.notifier.PromotedRole(ctx, project, user)

	case "added_to_big_task", "removed_from_big_task":
		if req.BigTaskTitle == "" {
			return fmt.Errorf("%w: big_task_title", errBadEvent)
		}
		user, err := s.requireUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		bigTask := model.BigTask{Title: req.BigTaskTitle, ProjectID: req.ProjectID}
		if kind == "added_to_big_task" {
			return s.notifier.AddedToBigTask(ctx, bigTask, user)
		}
		return s.notifier.RemovedFromBigTask(ctx, bigTask, user)
	}
	return fmt.Errorf("%w: %s", errUnknownEvent, kind)
}

func (s *Server) requireTask(ctx context.Context, id int64) (model.Task, error) {
	if id == 0 {
		return model.Task{}, fmt.Errorf("%w: task_id", errBadEvent)
	}
	return s.domain.TaskByID(ctx, id)
}

func (s *Server) requireUser(ctx context.Context, id int64) (model.User, error) {
	if id == 0 {
		return model.User{}, fmt.Errorf("%w: ユーザーID", errBadEvent)
	}
	return s.domain.UserByID(ctx, id)
}

func (s *Server) requireProjectAndUser(ctx context.Context, req eventRequest) (model.Project, model.User, error) {
	if req.ProjectID == 0 {
		return model.Project{}, model.User{}, fmt.Errorf("%w: project_id", errBadEvent)
	}
	project, err := s.domain.ProjectByID(ctx, req.ProjectID)
	if err != nil {
		return model.Project{}, model.User{}, err
	}
	user, err := s.requireUser(ctx, req.UserID)
	if err != nil {
		return model.Project{}, model.User{}, err
	}
	return project, user, nil
}

