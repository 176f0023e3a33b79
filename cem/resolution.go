package cem

// INEGI角秒方案：15→0.5″ 30→1″ 60→2″ 90→3″ 120→4″
var stepArcsec = map[int]float64{
	15:  0.5,
	30:  1.0,
	60:  2.0,
	90:  3.0,
	120: 4.0,
}

// ValidResolutions 支持的地面分辨率（米），按升序
func ValidResolutions() []int {
	return []int{15, 30, 60, 90, 120}
}

// IsValidResolution 校验分辨率是否在枚举集合内
func IsValidResolution(resM int) bool {
	_, ok := stepArcsec[resM]
	return ok
}

// AngularStepDegrees 将米分辨率映射为角度步长（度）
// 校验先于任何网络请求发生
func AngularStepDegrees(resM int) (float64, error) {
	sec, ok := stepArcsec[resM]
	if !ok {
		return 0, &InvalidResolutionError{Res: resM}
	}
	return sec / 3600.0, nil
}
