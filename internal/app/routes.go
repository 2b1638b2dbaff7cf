package app

import (
	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/handler"
	mid "github.com/norbi4050/misiones-arrienda-sub010/internal/middleware"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/config"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/jwtutil"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type services struct {
	users       *service.Users
	limits      *service.Limits
	properties  *service.Properties
	community   *service.Community
	matching    *service.Matching
	messaging   *service.Messaging
	attachments *service.Attachments
	presence    *service.Presence
	payments    *service.Payments
	notifier    *service.Notifier
	admin       *service.Admin
	analytics   *service.Analytics
	roommates   *service.Roommates
	team        *service.Team
}

func registerRoutes(e *echo.Echo, cfg *config.Config, db *gorm.DB, jwt *jwtutil.JWTUtil, store storage.Store, svc services) {
	auth := mid.Auth(jwt)

	// Metrics endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Health check endpoint
	health := handler.NewHealthHandler(db, cfg.ServiceName)
	e.GET("/health", health.HealthCheck)

	// Object storage
	objects := handler.NewStorageHandler(store, jwt)
	e.GET("/storage/v1/object/public/:bucket/*", objects.Public)
	e.GET("/storage/v1/object/sign/:bucket/*", objects.Signed)

	authH := handler.NewAuthHandler(svc.users)
	e.POST("/auth/register", authH.Register)
	e.POST("/auth/login", authH.Login)

	users := handler.NewUserHandler(svc.users, svc.limits, svc.properties)
	userAPI := e.Group("/api/users", auth)
	userAPI.GET("/profile", users.GetProfile)
	userAPI.PATCH("/profile", users.UpdateProfile)
	userAPI.POST("/change-password", users.ChangePassword)
	userAPI.POST("/avatar", users.UploadAvatar)
	userAPI.GET("/avatar", users.GetAvatar)
	userAPI.DELETE("/avatar", users.DeleteAvatar)
	userAPI.GET("/limits", users.Limits)
	userAPI.GET("/properties", users.MyProperties)

	// Listings are public to read; the owner sees their suspended ones
	properties := handler.NewPropertyHandler(svc.properties)
	e.GET("/api/properties", properties.List)
	e.GET("/api/properties/:id", properties.Get, mid.OptionalAuth(jwt))
	propertyAPI := e.Group("/api/properties", auth)
	propertyAPI.POST("", properties.Create)
	propertyAPI.POST("/bulk", properties.Bulk)
	propertyAPI.PUT("/:id", properties.Update)
	propertyAPI.DELETE("/:id", properties.Delete)
	propertyAPI.POST("/:id/images", properties.UploadImages)
	propertyAPI.POST("/:id/report", properties.Report)

	community := handler.NewCommunityHandler(svc.community, svc.matching)
	communityAPI := e.Group("/api/community", auth)
	communityAPI.POST("/profile", community.CreateProfile)
	communityAPI.GET("/profile", community.GetMyProfile)
	communityAPI.PUT("/profile", community.UpdateProfile)
	communityAPI.DELETE("/profile", community.DeleteProfile)
	communityAPI.POST("/profile/photos", community.UploadPhotos)
	communityAPI.GET("/profiles", community.ListProfiles)
	communityAPI.GET("/profiles/:id", community.GetProfile)
	communityAPI.POST("/likes", community.Like)
	communityAPI.DELETE("/likes/:userId", community.Unlike)

	// The roommate feed is public; drafts are only visible to their owner
	roommates := handler.NewRoommateHandler(svc.roommates)
	e.GET("/api/roommates", roommates.List)
	e.GET("/api/roommates/:slug", roommates.Get, mid.OptionalAuth(jwt))
	roommateAPI := e.Group("/api/roommates", auth)
	roommateAPI.POST("", roommates.Create)
	roommateAPI.POST("/:slug/publish", roommates.Publish)

	team := handler.NewTeamHandler(svc.team)
	e.GET("/api/inmobiliarias/team", team.List)
	teamAPI := e.Group("/api/inmobiliarias/team", auth)
	teamAPI.POST("", team.Create)
	teamAPI.PUT("", team.Save)
	teamAPI.DELETE("", team.Delete)

	matchAPI := e.Group("/api/comunidad/matches", auth)
	matchAPI.GET("", community.ListMatches)
	matchAPI.POST("", community.CreateMatch)
	matchAPI.PUT("", community.UpdateMatch)

	messages := handler.NewMessageHandler(svc.messaging, svc.attachments)
	messageAPI := e.Group("/api/messages", auth)
	messageAPI.GET("/threads", messages.ListThreads)
	messageAPI.POST("/threads", messages.CreateThread)
	messageAPI.GET("/threads/:id", messages.GetThread)
	messageAPI.POST("/threads/:id/messages", messages.SendMessage)
	messageAPI.POST("/threads/:id/read", messages.MarkRead)
	messageAPI.POST("/attachments", messages.UploadAttachment)
	messageAPI.GET("/attachments/:id", messages.GetAttachment)
	messageAPI.DELETE("/attachments/:id", messages.DeleteAttachment)

	presence := handler.NewPresenceHandler(svc.presence)
	presenceAPI := e.Group("/api/presence", auth)
	presenceAPI.POST("/:channel", presence.Track)
	presenceAPI.DELETE("/:channel", presence.Untrack)
	presenceAPI.GET("/:channel", presence.State)

	// The webhook authenticates with its signature, not a session
	payments := handler.NewPaymentHandler(svc.payments)
	e.POST("/api/payments/webhook", payments.Webhook)
	e.GET("/api/payments/methods", payments.Methods)
	paymentAPI := e.Group("/api/payments", auth)
	paymentAPI.POST("/checkout", payments.Checkout)
	paymentAPI.GET("", payments.List)
	paymentAPI.GET("/status/:id", payments.Status)
	paymentAPI.GET("/:id", payments.Get)

	notifications := handler.NewNotificationHandler(svc.notifier)
	notificationAPI := e.Group("/api/notifications", auth)
	notificationAPI.GET("", notifications.List)
	notificationAPI.POST("/read-all", notifications.MarkAllRead)
	notificationAPI.GET("/preferences", notifications.Preferences)
	notificationAPI.PUT("/preferences", notifications.UpdatePreferences)
	notificationAPI.POST("/:id/read", notifications.MarkRead)

	admin := handler.NewAdminHandler(svc.admin, svc.payments, svc.limits)
	adminAPI := e.Group("/api/admin", auth, mid.RequireAdmin)
	adminAPI.GET("/reports", admin.ListReports)
	adminAPI.PUT("/reports/:id", admin.ReviewReport)
	adminAPI.GET("/community-posts", admin.ListCommunityPosts)
	adminAPI.PUT("/community-posts/:id", admin.UpdateCommunityPost)
	adminAPI.GET("/users", admin.ListUsers)
	adminAPI.PUT("/users/:id/type", admin.SetUserType)
	adminAPI.GET("/stats", admin.Stats)
	adminAPI.POST("/payments/:id/refund", admin.RefundPayment)

	analytics := handler.NewAnalyticsHandler(svc.analytics)
	e.GET("/api/analytics/dashboard", analytics.Dashboard, auth)
}
