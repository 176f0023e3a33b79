package cem

import "fmt"

// InvalidResolutionError 分辨率不在支持的枚举集合内，整个批次在任何IO之前终止
type InvalidResolutionError struct {
	Res int
}

func (e *InvalidResolutionError) Error() string {
	return fmt.Sprintf("无效分辨率 %d 米，仅支持 15,30,60,90,120", e.Res)
}

// ProjectionError 源坐标系到EPSG:4326没有可用的转换
type ProjectionError struct {
	SrcEPSG string
	Detail  string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("坐标转换失败 (EPSG:%s -> 4326): %s", e.SrcEPSG, e.Detail)
}

// NetworkError 传输层失败：连接错误、非成功状态码或响应体截断
type NetworkError struct {
	URL    string
	Detail string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("网络错误: %s", e.Detail)
}

// MaskWriteError 掩膜矢量文件序列化失败
type MaskWriteError struct {
	Path   string
	Detail string
}

func (e *MaskWriteError) Error() string {
	return fmt.Sprintf("掩膜写出失败 %s: %s", e.Path, e.Detail)
}

// ClipError 外部裁剪操作返回非成功状态
type ClipError struct {
	Detail string
}

func (e *ClipError) Error() string {
	return fmt.Sprintf("栅格裁剪失败: %s", e.Detail)
}
