package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
)

const defaultWeatherBaseURL = "http://t.weather.sojson.com"

// sojsonWeather sojson 免费天气 API 的响应
type sojsonWeather struct {
	Message  string `json:"message"`
	Status   int    `json:"status"`
	CityInfo struct {
		City   string `json:"city"`
		Parent string `json:"parent"`
	} `json:"cityInfo"`
	Data struct {
		Shidu   string  `json:"shidu"`   // 湿度
		PM25    float64 `json:"pm25"`    // PM2.5
		Quality string  `json:"quality"` // 空气质量
		Wendu   string  `json:"wendu"`   // 温度
		Ganmao  string  `json:"ganmao"`  // 感冒提示
	} `json:"data"`
}

// 城市代码映射（常用城市）
var cityCodes = map[string]string{
	"北京":   "101010100",
	"上海":   "101020100",
	"广州":   "101280101",
	"深圳":   "101280601",
	"成都":   "101270101",
	"杭州":   "101210101",
	"武汉":   "101200101",
	"西安":   "101110101",
	"重庆":   "101040100",
	"天津":   "101030100",
	"南京":   "101190101",
	"苏州":   "101190401",
	"长沙":   "101250101",
	"郑州":   "101180101",
	"沈阳":   "101070101",
	"青岛":   "101120201",
	"宁波":   "101210401",
	"厦门":   "101230201",
	"济南":   "101120101",
	"哈尔滨":  "101050101",
	"福州":   "101230101",
	"昆明":   "101290101",
	"兰州":   "101160101",
	"石家庄":  "101090101",
	"合肥":   "101220101",
	"南昌":   "101240101",
	"太原":   "101100101",
	"贵阳":   "101260101",
	"南宁":   "101300101",
	"海口":   "101310101",
	"乌鲁木齐": "101130101",
	"拉萨":   "101140101",
	"银川":   "101170101",
	"西宁":   "101150101",
	"呼和浩特": "101080101",
}

// fetchWeather 查询城市实时天气并格式化成可播报的一句话
func fetchWeather(ctx context.Context, client *resty.Client, baseURL, city string) (string, error) {
	cityCode, ok := cityCodes[city]
	if !ok {
		return "", fmt.Errorf("暂不支持查询%s的天气，目前支持北京、上海、广州、深圳等主要城市", city)
	}

	resp, err := client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/api/weather/city/%s", baseURL, cityCode))
	if err != nil {
		return "", fmt.Errorf("请求天气 API 失败: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("天气 API 返回错误状态码: %d", resp.StatusCode())
	}

	var weather sojsonWeather
	if err := json.Unmarshal(resp.Body(), &weather); err != nil {
		return "", fmt.Errorf("解析天气数据失败: %w", err)
	}
	if weather.Status != 200 {
		return "", fmt.Errorf("天气 API 返回错误: %s", weather.Message)
	}

	return fmt.Sprintf(
		"%s·%s当前天气：温度%s度，湿度%s，空气质量%s，PM2.5指数%.0f。%s",
		weather.CityInfo.Parent,
		weather.CityInfo.City,
		weather.Data.Wendu,
		weather.Data.Shidu,
		weather.Data.Quality,
		weather.Data.PM25,
		weather.Data.Ganmao,
	), nil
}
