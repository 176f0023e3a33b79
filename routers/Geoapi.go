package routers

import (
	"github.com/GrainArc/CemDownloader/views"
	"github.com/gin-gonic/gin"
)

func CemRouters(r *gin.Engine) {
	UserController := &views.UserController{}
	cemRouter := r.Group("/cem")
	{
		cemRouter.POST("/Split/start", UserController.StartSplitDownload)
		cemRouter.GET("/Split/ws/:taskId", UserController.SplitDownloadWebSocket)
		cemRouter.GET("/Split/status/:taskId", UserController.GetSplitTaskStatus)
		cemRouter.GET("/Split/record/:taskId", UserController.GetTaskRecord)
		cemRouter.GET("/Split/result/:taskId", UserController.DownloadSplitResult)

		cemRouter.POST("/Estado/start", UserController.StartEstadoDownload)
		cemRouter.GET("/Estado/ws/:taskId", UserController.EstadoDownloadWebSocket)
		cemRouter.GET("/Estado/status/:taskId", UserController.GetSplitTaskStatus)
		cemRouter.GET("/Estado/record/:taskId", UserController.GetTaskRecord)
	}
}
