// Package config loads Gift Planner Core configuration from YAML.
//
// Values start from Default, are replaced by the file and then by
// environment variables named GIFTPLANNER_<SECTION>_<KEY>, for example
// GIFTPLANNER_DATABASE_CACHE_CAPACITY or GIFTPLANNER_INFLUXDB_TOKEN. Keep
// credentials in the environment rather than the file.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
