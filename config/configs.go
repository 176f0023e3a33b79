package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

var MainRouter string
var WCSBase string
var CoverageID string
var EstadoBase string
var EstadoBuild string
var Download string
var GdalWarp string
var HTTPTimeout int
var MainConfig Config

type Config struct {
	XMLName     xml.Name `xml:"config"`
	MainRouter  string   `xml:"MainRouter"`
	WCSBase     string   `xml:"wcsbase"`
	CoverageID  string   `xml:"coverage"`
	EstadoBase  string   `xml:"estadobase"`
	EstadoBuild string   `xml:"estadobuild"`
	Download    string   `xml:"download"`
	GdalWarp    string   `xml:"gdalwarp"`
	HTTPTimeout int      `xml:"httptimeout"`
}

// 缺省值为INEGI正式服务地址与CEM V3覆盖层
func setDefaults() {
	if MainConfig.MainRouter == "" {
		MainConfig.MainRouter = "0.0.0.0:8426"
	}
	if MainConfig.WCSBase == "" {
		MainConfig.WCSBase = "https://gaia.inegi.org.mx/geoserver/wcs"
	}
	if MainConfig.CoverageID == "" {
		MainConfig.CoverageID = "cem30_workespace:cem3_r15"
	}
	if MainConfig.EstadoBase == "" {
		MainConfig.EstadoBase = "https://www.inegi.org.mx/app/geo2/elevacionesmex/DownloadFile.do"
	}
	if MainConfig.EstadoBuild == "" {
		MainConfig.EstadoBuild = "20170619"
	}
	if MainConfig.Download == "" {
		MainConfig.Download = filepath.Join(os.TempDir(), "CEM_Temp")
	}
	if MainConfig.GdalWarp == "" {
		MainConfig.GdalWarp = "gdalwarp"
	}
	if MainConfig.HTTPTimeout <= 0 {
		MainConfig.HTTPTimeout = 300
	}
}

func init() {

	xmlFile, err := os.Open("config.xml")
	if err == nil {
		defer xmlFile.Close()
		xmlDecoder := xml.NewDecoder(xmlFile)
		if err = xmlDecoder.Decode(&MainConfig); err != nil {
			fmt.Println("Error  decoding  XML:", err)
		}
	}
	setDefaults()

	MainRouter = MainConfig.MainRouter
	WCSBase = MainConfig.WCSBase
	CoverageID = MainConfig.CoverageID
	EstadoBase = MainConfig.EstadoBase
	EstadoBuild = MainConfig.EstadoBuild
	Download = MainConfig.Download
	GdalWarp = MainConfig.GdalWarp
	HTTPTimeout = MainConfig.HTTPTimeout
}
