package models

import "gorm.io/datatypes"

type DemRecord struct {
	ID         int64          `gorm:"primary_key;autoIncrement"`
	TaskID     string         `gorm:"type:varchar(64);index"` //下载任务ID
	LayerName  string         `gorm:"type:varchar(255)"`      //输入图层名称
	Resolution int            //请求的地面分辨率（米）
	OutputPath string         `gorm:"type:varchar(255)"`      //任务输出目录
	Status     int            //任务运行状态 0 运行中 1 执行完成  2 执行失败
	TypeName   string         `gorm:"type:varchar(64)"`       //任务类型 split/estado
	Total      int            //单部件多边形总数
	Succeeded  int            //成功数量
	Failed     int            //失败数量
	Args       datatypes.JSON `gorm:"type:jsonb"` //任务输入参数
	Failures   datatypes.JSON `gorm:"type:jsonb"` //失败明细 [{index,error}]
}

func (DemRecord) TableName() string {
	return "dem_record"
}
